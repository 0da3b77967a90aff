// Package stages implements the bodies of the four migration stages.
//
// Extract reads installed providers from the source database and writes the
// plugin manifest into the artifact store. Install replays the manifest against
// the plugin marketplace. SchemaUpgrade applies the versioned SQL migrations of
// the upgrade range and DataMigrate rewrites provider references in place.
//
// Every body is safe to run again after a partial attempt: the manifest is
// rewritten whole, installs treat "already installed" as success, applied
// migrations are recorded and the data rewrite only touches rows it has not
// converted yet.
package stages
