// Package domain models Copernicus Emergency Management Service (EMS) flood
// activations and the categorical ground-truth labels derived from them.
//
// # Data Source
//
// Flood polygons come from EMS Rapid Mapping vector products (delineation,
// grading and first-estimate products). An upstream acquisition step unzips
// the latest product version for each area of interest, normalises the
// shapefiles into one GeoJSON feature collection per observation and writes a
// metadata document alongside it. Static reference imagery (JRC yearly water
// history and ESA WorldCover) is exported per area of interest as one or more
// GeoTIFF tiles.
//
// # Identifiers
//
// Every artifact is keyed by typed identifiers that are validated once, when
// the file name is parsed by [ParseArtifactName]:
//
//	EventID          "EMSR" followed by the activation number, e.g. "EMSR692"
//	AOIID            area-of-interest label, letters, digits and '-', e.g. "03MURAMBINDASOUTHWEST"
//	ObservationDate  satellite acquisition date "YYYYMMDD", optionally tagged
//	                 with a product code: "20230312-GRA"
//
// File names join these with '_' and end with an artifact suffix:
//
//	EMSR692_AOI01_20230312_floodmap.geojson
//	EMSR692_AOI01_20230312_metadata.json
//	EMSR692_AOI01_20230312_static_images-0000000000-0000000000.tif
//	EMSR692_AOI01_20230312_static_images.tif
//	EMSR692_AOI01_20230312_ground_truth.tif
//	EMSR692_AOI01_ground_truth_merged.tif
//
// # Categories
//
// Labels are ordinal: invalid (0) < land (1) < flood (2) < hydrology and
// permanent water (3). The w_class vocabulary of EMS products is large and
// messy; [Vocabulary] pins one versioned mapping and rejects anything it does
// not know instead of defaulting.
//
// # Stream polygons
//
// Hydrography line features carry source "hydro_l" (lower-case L). Some EMS
// documentation spells it "hydro_1"; that spelling is reported but never
// treated as a stream tag. See [StreamSource].
package domain
