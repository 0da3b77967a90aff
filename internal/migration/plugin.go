package migration

import "strings"

// PluginID turns a provider name into a plugin identifier of the form
// <namespace>/<name>. Names that already carry a namespace are returned
// lower-cased but otherwise unchanged.
func PluginID(namespace, provider string) string {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" || strings.Contains(name, "/") {
		return name
	}
	return namespace + "/" + name
}
