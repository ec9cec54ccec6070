// Package etcdop provides typed keys and prefixes on top of the etcd client,
// with pluggable serialization, typed watch streams and a session that survives network outages.
//
// Keys are relative, the etcd client is expected to be namespaced, see etcdclient.UseNamespace.
package etcdop
