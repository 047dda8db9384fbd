// Package health turns per-category resource metrics into a composite
// health score.
//
// bundle.go defines the typed per-category inputs (CPUBundle, MemoryBundle,
// DiskBundle, NetworkBundle, ProcessBundle) and Metrics, which holds one of
// each. A nil bundle means the category was not measured and scores 100.
//
// rules.go holds the ordered penalty tables. Bands that share a dimension are
// mutually exclusive (the highest matching band wins); different dimensions
// accumulate.
//
// score.go combines the component scores with fixed weights (cpu 25%,
// memory 25%, disk 25%, network 15%, process 10%) and floors the result.
package health
