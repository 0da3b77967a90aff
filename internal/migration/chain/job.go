package chain

import (
	"fmt"
	"strconv"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/util/labels"
	"github.com/imamik/stagehand/internal/util/naming"
	"github.com/imamik/stagehand/internal/util/ptr"
)

const (
	containerName  = "stage"
	artifactVolume = "artifacts"
	stageUID       = 65532
	binaryName     = "stagehand"
)

// TerminalExitCode is the exit code of a runner whose stage failed terminally.
// The Job's pod failure policy fails the Job on it instead of starting
// another pod.
const TerminalExitCode int32 = 3

// Template renders the Jobs of one run.
type Template struct {
	Config      *config.Config
	RunID       string
	FromVersion string
	Stages      []Stage
}

// Jobs returns one Job per stage in chain order.
func (t Template) Jobs() []*batchv1.Job {
	jobs := make([]*batchv1.Job, 0, len(t.Stages))
	for _, s := range t.Stages {
		jobs = append(jobs, t.JobFor(s))
	}
	return jobs
}

// JobFor builds the Job executing a single stage.
func (t Template) JobFor(s Stage) *batchv1.Job {
	cfg := t.Config
	name := naming.StageJob(cfg.Release, t.RunID, string(s.Name))

	jobLabels := labels.NewLabelBuilder(cfg.Release, t.RunID).
		WithComponent(labels.ComponentStage).
		WithStage(string(s.Name), s.Ordinal).
		Build()

	annotations := map[string]string{
		labels.AnnotationFromVersion: t.FromVersion,
		labels.AnnotationToVersion:   cfg.ToVersion,
	}
	if s.HasPrecondition() {
		annotations[labels.AnnotationDependsOn] = naming.StageJob(cfg.Release, t.RunID, string(s.Upstream))
	}

	container := corev1.Container{
		Name:            containerName,
		Image:           cfg.Execution.ImageRef(),
		ImagePullPolicy: corev1.PullPolicy(cfg.Execution.PullPolicy),
		Command:         []string{binaryName, "stage", "run", "--stage", string(s.Name)},
		Env:             t.buildEnv(s),
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("100m"),
				corev1.ResourceMemory: resource.MustParse("128Mi"),
			},
			Limits: corev1.ResourceList{
				corev1.ResourceMemory: resource.MustParse("512Mi"),
			},
		},
		SecurityContext: &corev1.SecurityContext{
			AllowPrivilegeEscalation: ptr.Bool(false),
			RunAsNonRoot:             ptr.Bool(true),
			Capabilities:             &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}},
			SeccompProfile:           &corev1.SeccompProfile{Type: corev1.SeccompProfileTypeRuntimeDefault},
		},
	}

	podSpec := corev1.PodSpec{
		ServiceAccountName: cfg.Execution.ServiceAccount,
		RestartPolicy:      corev1.RestartPolicyNever,
		SecurityContext: &corev1.PodSecurityContext{
			RunAsUser:  ptr.Int64(stageUID),
			RunAsGroup: ptr.Int64(stageUID),
			FSGroup:    ptr.Int64(stageUID),
		},
	}

	if cfg.Artifacts.Backend == config.BackendVolume {
		container.VolumeMounts = []corev1.VolumeMount{{Name: artifactVolume, MountPath: config.DefaultArtifactDir}}
		podSpec.Volumes = []corev1.Volume{{
			Name: artifactVolume,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
					ClaimName: naming.ArtifactVolume(cfg.Release, t.RunID),
				},
			},
		}}
	}
	podSpec.Containers = []corev1.Container{container}

	return &batchv1.Job{
		TypeMeta: metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   cfg.Namespace,
			Labels:      jobLabels,
			Annotations: annotations,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            ptr.Int32(int32(s.RetryLimit)),
			ActiveDeadlineSeconds:   ptr.Int64(int64(ActiveDeadline(s).Seconds())),
			TTLSecondsAfterFinished: ptr.Int32(int32(s.Retention.Seconds())),
			PodFailurePolicy: &batchv1.PodFailurePolicy{
				Rules: []batchv1.PodFailurePolicyRule{{
					Action: batchv1.PodFailurePolicyActionFailJob,
					OnExitCodes: &batchv1.PodFailurePolicyOnExitCodesRequirement{
						ContainerName: ptr.String(containerName),
						Operator:      batchv1.PodFailurePolicyOnExitCodesOpIn,
						Values:        []int32{TerminalExitCode},
					},
				}},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: jobLabels},
				Spec:       podSpec,
			},
		},
	}
}

// buildEnv builds the runner environment of a stage container.
func (t Template) buildEnv(s Stage) []corev1.EnvVar {
	cfg := t.Config

	env := []corev1.EnvVar{
		{Name: config.EnvRunID, Value: t.RunID},
		{
			Name: config.EnvNamespace,
			ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: "metadata.namespace"},
			},
		},
		{Name: config.EnvRelease, Value: cfg.Release},
		{Name: config.EnvStatusRecord, Value: naming.StatusRecord(cfg.Release, t.RunID)},
		{Name: config.EnvChain, Value: config.FormatChain(Names(t.Stages))},
		{Name: config.EnvFromVersion, Value: t.FromVersion},
		{Name: config.EnvToVersion, Value: cfg.ToVersion},
		{Name: config.EnvArtifactBackend, Value: string(cfg.Artifacts.Backend)},
	}

	switch cfg.Artifacts.Backend {
	case config.BackendS3:
		s3 := cfg.Artifacts.S3
		env = append(env,
			corev1.EnvVar{Name: config.EnvS3Endpoint, Value: s3.Endpoint},
			corev1.EnvVar{Name: config.EnvS3Region, Value: s3.Region},
			corev1.EnvVar{Name: config.EnvS3Bucket, Value: s3.Bucket},
			corev1.EnvVar{Name: config.EnvS3PathStyle, Value: strconv.FormatBool(s3.PathStyle)},
			secretEnv(config.EnvS3AccessKey, s3.CredentialsSecret, s3.AccessKeyKey),
			secretEnv(config.EnvS3SecretKey, s3.CredentialsSecret, s3.SecretKeyKey),
		)
	default:
		env = append(env, corev1.EnvVar{Name: config.EnvArtifactDir, Value: config.DefaultArtifactDir})
	}

	db := cfg.Database
	env = append(env,
		corev1.EnvVar{Name: config.EnvDBHost, Value: db.Host},
		corev1.EnvVar{Name: config.EnvDBPort, Value: strconv.Itoa(db.Port)},
		corev1.EnvVar{Name: config.EnvDBName, Value: db.Name},
		corev1.EnvVar{Name: config.EnvDBSSLMode, Value: db.SSLMode},
		secretEnv(config.EnvDBUser, db.CredentialsSecret, db.UsernameKey),
		secretEnv(config.EnvDBPassword, db.CredentialsSecret, db.PasswordKey),
	)

	m := cfg.Migration
	env = append(env,
		corev1.EnvVar{Name: config.EnvMarketplaceURL, Value: m.MarketplaceURL},
		corev1.EnvVar{Name: config.EnvPluginNamespace, Value: m.PluginNamespace},
		corev1.EnvVar{Name: config.EnvExtractWorkers, Value: strconv.Itoa(m.Workers.Extract)},
		corev1.EnvVar{Name: config.EnvInstallWorkers, Value: strconv.Itoa(m.Workers.Install)},
		corev1.EnvVar{Name: config.EnvBackupEnabled, Value: strconv.FormatBool(m.BackupEnabled)},
		corev1.EnvVar{Name: config.EnvRetryLimit, Value: strconv.Itoa(s.RetryLimit)},
		corev1.EnvVar{Name: config.EnvDeadline, Value: s.Deadline.String()},
		corev1.EnvVar{Name: config.EnvAwaitTimeout, Value: s.AwaitTimeout.String()},
		corev1.EnvVar{Name: config.EnvAwaitInitial, Value: cfg.Await.InitialInterval.String()},
		corev1.EnvVar{Name: config.EnvAwaitMax, Value: cfg.Await.MaxInterval.String()},
	)

	if cfg.Metrics.PushgatewayURL != "" {
		env = append(env, corev1.EnvVar{Name: config.EnvPushgatewayURL, Value: cfg.Metrics.PushgatewayURL})
	}

	return env
}

func secretEnv(name, secret, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secret},
				Key:                  key,
			},
		},
	}
}

// String describes a stage for logs.
func (s Stage) String() string {
	if !s.HasPrecondition() {
		return fmt.Sprintf("%d-%s", s.Ordinal, s.Name)
	}
	return fmt.Sprintf("%d-%s (after %s)", s.Ordinal, s.Name, s.Upstream)
}
