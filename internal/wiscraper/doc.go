// Package wiscraper is the sweep core for the WCCA advanced case search.
//
// A sweep splits a filing-date range into windows, queries every window for
// every class code, normalizes the returned rows into CaseSummary values and
// merges them by (case_no, county_no). The first summary seen for a case is
// kept; later sightings only add their class code. Windows are visited in
// ascending order and, within a window, class codes in the order given, so the
// result is deterministic for a given set of responses.
//
// Nothing here touches the network directly: queries go through a
// SearchClient, which pipeline.Client implements over HTTP.
package wiscraper
