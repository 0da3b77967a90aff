// Package metrics holds the Prometheus collectors recorded by stage runners.
//
// Stage pods are short-lived, so collectors live on a dedicated registry that
// is pushed to a Pushgateway when one is configured instead of being scraped.
package metrics
