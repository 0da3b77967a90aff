// Package k8s wraps the Kubernetes API operations used by migration runs.
//
// The [Client] interface covers exactly the objects a run owns: the artifact
// PersistentVolumeClaim, the status ConfigMap, the exclusivity Lease, the
// stage Jobs and the optional Role and RoleBinding. Create operations that
// must be idempotent treat AlreadyExists as success; delete operations treat
// NotFound as success. Errors are wrapped so callers can still inspect them
// with the apimachinery errors helpers.
package k8s
