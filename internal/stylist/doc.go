// Package stylist interprets free-text aesthetic requests and writes
// personalized product descriptions.
//
// Analysis goes through a Model (the gateway chat endpoint by default, or
// the Gemini backend). Any model failure degrades to a keyword profile
// match so callers always receive a usable Analysis. The profile tables,
// keyword expansions and related categories are embedded as YAML.
package stylist
