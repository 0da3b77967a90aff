package orchestrator

import (
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/migration/status"
	"github.com/imamik/stagehand/internal/util/labels"
	"github.com/imamik/stagehand/internal/util/naming"
)

// runObjects builds the non-Job resources of one run.
type runObjects struct {
	cfg         *config.Config
	runID       string
	fromVersion string
}

func (r runObjects) labels(component string) map[string]string {
	return labels.NewLabelBuilder(r.cfg.Release, r.runID).WithComponent(component).Build()
}

func (r runObjects) annotations() map[string]string {
	return map[string]string{
		labels.AnnotationFromVersion: r.fromVersion,
		labels.AnnotationToVersion:   r.cfg.ToVersion,
	}
}

func (r runObjects) lease(holder string, now time.Time) *coordinationv1.Lease {
	acquired := metav1.NewMicroTime(now)
	return &coordinationv1.Lease{
		TypeMeta: metav1.TypeMeta{APIVersion: "coordination.k8s.io/v1", Kind: "Lease"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        naming.Lock(r.cfg.Release, r.runID),
			Namespace:   r.cfg.Namespace,
			Labels:      r.labels(labels.ComponentLock),
			Annotations: r.annotations(),
		},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity: &holder,
			AcquireTime:    &acquired,
		},
	}
}

func (r runObjects) artifactClaim() *corev1.PersistentVolumeClaim {
	a := r.cfg.Artifacts
	pvc := &corev1.PersistentVolumeClaim{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "PersistentVolumeClaim"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        naming.ArtifactVolume(r.cfg.Release, r.runID),
			Namespace:   r.cfg.Namespace,
			Labels:      r.labels(labels.ComponentArtifacts),
			Annotations: r.annotations(),
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.PersistentVolumeAccessMode(a.AccessMode)},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(a.Size),
				},
			},
		},
	}
	if a.StorageClass != "" {
		sc := a.StorageClass
		pvc.Spec.StorageClassName = &sc
	}
	return pvc
}

func (r runObjects) statusRecord(now time.Time) *corev1.ConfigMap {
	cm := status.NewConfigMap(r.cfg.Namespace, naming.StatusRecord(r.cfg.Release, r.runID), r.labels(labels.ComponentStatus),
		status.Record{
			Status:      status.StatePending,
			FromVersion: r.fromVersion,
			ToVersion:   r.cfg.ToVersion,
			RunID:       r.runID,
			Timestamp:   now,
			UpdatedAt:   now,
		})
	cm.TypeMeta = metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"}
	return cm
}

// statusRole lets stage pods read and update their run's status record and nothing else.
func (r runObjects) statusRole() *rbacv1.Role {
	return &rbacv1.Role{
		TypeMeta: metav1.TypeMeta{APIVersion: "rbac.authorization.k8s.io/v1", Kind: "Role"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      naming.StatusWriterRole(r.cfg.Release, r.runID),
			Namespace: r.cfg.Namespace,
			Labels:    r.labels(labels.ComponentRBAC),
		},
		Rules: []rbacv1.PolicyRule{{
			APIGroups:     []string{""},
			Resources:     []string{"configmaps"},
			ResourceNames: []string{naming.StatusRecord(r.cfg.Release, r.runID)},
			Verbs:         []string{"get", "update"},
		}},
	}
}

func (r runObjects) statusRoleBinding() *rbacv1.RoleBinding {
	name := naming.StatusWriterRole(r.cfg.Release, r.runID)
	sa := r.cfg.Execution.ServiceAccount
	if sa == "" {
		sa = "default"
	}
	return &rbacv1.RoleBinding{
		TypeMeta: metav1.TypeMeta{APIVersion: "rbac.authorization.k8s.io/v1", Kind: "RoleBinding"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: r.cfg.Namespace,
			Labels:    r.labels(labels.ComponentRBAC),
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "Role",
			Name:     name,
		},
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      sa,
			Namespace: r.cfg.Namespace,
		}},
	}
}
