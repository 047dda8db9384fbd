// Package baseline computes robust statistical profiles of a metric's normal
// behaviour: IQR outlier removal, then mean, sample standard deviation,
// min, max and a nearest-rank p95 over the retained values.
package baseline
