// Package configseed loads a static YAML object graph — hosts, services,
// notifications, time periods, zones, endpoints, API users — into the
// running registry at startup, standing in for Icinga2's config
// compiler. One YAML document per object, discriminated by a "kind"
// field, following the same apiVersion/kind/metadata/spec resource shape
// cmd/warren's "apply" command used for its own config objects.
package configseed
