package orchestrator

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/imamik/stagehand/internal/config"
	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/migration/gate"
	"github.com/imamik/stagehand/internal/migration/status"
	"github.com/imamik/stagehand/internal/util/labels"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx       context.Context
		cfg       *config.Config
		orch      *Orchestrator
		clientset *fake.Clientset
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = newTestConfig()
		orch, clientset = newTestOrchestrator(cfg)
	})

	listJobs := func() []string {
		jobs, err := clientset.BatchV1().Jobs("apps").List(ctx, metav1.ListOptions{})
		Expect(err).NotTo(HaveOccurred())
		var names []string
		for _, j := range jobs.Items {
			names = append(names, j.Name)
		}
		return names
	}

	Context("when the gate decides against a run", func() {
		It("creates nothing for a disabled migration", func() {
			req := cfg.Request()
			req.Enabled = false

			result, err := orch.Launch(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Launched).To(BeFalse())
			Expect(result.Decision.Reason).To(Equal(gate.ReasonDisabled))
			Expect(clientset.Actions()).To(BeEmpty())
		})

		It("creates nothing without a source version, even with auto-detection", func() {
			req := cfg.Request()
			req.FromVersion = ""
			req.AutoDetect = true

			result, err := orch.Launch(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Launched).To(BeFalse())
			Expect(result.Decision.Reason).To(Equal(gate.ReasonNoSourceVersion))
			Expect(clientset.Actions()).To(BeEmpty())
		})

		It("skips the whole chain when plugin migration is skipped", func() {
			req := cfg.Request()
			req.SkipPluginMigration = true

			result, err := orch.Launch(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Launched).To(BeFalse())
			Expect(listJobs()).To(BeEmpty())
		})
	})

	Context("when an upgrade is requested", func() {
		It("submits four jobs in chain order, each depending on the previous one", func() {
			result, err := orch.Launch(ctx, cfg.Request())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Launched).To(BeTrue())
			Expect(result.RunID).To(Equal(migration.RunID("1.0.0", "1.4.2")))

			prefix := "shop-migration-" + result.RunID + "-"
			Expect(result.Jobs).To(Equal([]string{
				prefix + "extract",
				prefix + "install",
				prefix + "schema-upgrade",
				prefix + "data-migrate",
			}))

			By("creating the jobs in the same order")
			var created []string
			for _, a := range clientset.Actions() {
				if a.GetVerb() == "create" && a.GetResource().Resource == "jobs" {
					created = append(created, a.(k8stesting.CreateAction).GetObject().(metav1.Object).GetName())
				}
			}
			Expect(created).To(Equal(result.Jobs))

			By("annotating every job after the first with its upstream")
			for i, name := range result.Jobs {
				job, err := clientset.BatchV1().Jobs("apps").Get(ctx, name, metav1.GetOptions{})
				Expect(err).NotTo(HaveOccurred())
				if i == 0 {
					Expect(job.Annotations).NotTo(HaveKey(labels.AnnotationDependsOn))
				} else {
					Expect(job.Annotations).To(HaveKeyWithValue(labels.AnnotationDependsOn, result.Jobs[i-1]))
				}
			}
		})

		It("provisions the claim, artifact volume, status record and RBAC", func() {
			result, err := orch.Launch(ctx, cfg.Request())
			Expect(err).NotTo(HaveOccurred())
			stem := "shop-migration-" + result.RunID

			lease, err := clientset.CoordinationV1().Leases("apps").Get(ctx, stem+"-lock", metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(*lease.Spec.HolderIdentity).To(Equal("test-holder"))

			pvc, err := clientset.CoreV1().PersistentVolumeClaims("apps").Get(ctx, stem+"-artifacts", metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(pvc.Spec.Resources.Requests.Storage().String()).To(Equal("5Gi"))
			Expect(pvc.Spec.AccessModes).To(ConsistOf(corev1.ReadWriteOnce))

			cm, err := clientset.CoreV1().ConfigMaps("apps").Get(ctx, result.StatusRecord, metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(cm.Data).To(HaveKeyWithValue(status.KeyStatus, "pending"))
			Expect(cm.Data).To(HaveKeyWithValue(status.KeyFromVersion, "1.0.0"))
			Expect(cm.Data).To(HaveKeyWithValue(status.KeyToVersion, "1.4.2"))

			binding, err := clientset.RbacV1().RoleBindings("apps").Get(ctx, stem+"-status-writer", metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(binding.Subjects[0].Name).To(Equal("shop-migrator"))
		})

		It("rejects a second launch for the same version pair", func() {
			_, err := orch.Launch(ctx, cfg.Request())
			Expect(err).NotTo(HaveOccurred())

			other := New(orch.client, cfg, WithHolderIdentity("second-holder"))
			result, err := other.Launch(ctx, cfg.Request())
			Expect(errors.Is(err, ErrRunExists)).To(BeTrue())
			Expect(result.Launched).To(BeFalse())
			Expect(result.RunID).To(Equal(migration.RunID("1.0.0", "1.4.2")))
			Expect(result.ClaimedBy).To(Equal("test-holder"))
			Expect(result.ClaimedAt).To(BeTemporally("==", testNow))
			Expect(listJobs()).To(HaveLen(4), "only one chain exists")
		})

		It("submits only the non-plugin stages in plugin-stages skip mode", func() {
			req := cfg.Request()
			req.SkipPluginMigration = true
			req.SkipMode = migration.SkipPluginStages

			result, err := orch.Launch(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Jobs).To(HaveLen(2))

			first, err := clientset.BatchV1().Jobs("apps").Get(ctx, result.Jobs[0], metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Labels).To(HaveKeyWithValue(labels.KeyStage, "schema-upgrade"))
			Expect(first.Annotations).NotTo(HaveKey(labels.AnnotationDependsOn))
		})

		It("marks the run failed when a job cannot be created", func() {
			clientset.PrependReactor("create", "jobs", func(a k8stesting.Action) (bool, runtime.Object, error) {
				obj := a.(k8stesting.CreateAction).GetObject().(metav1.Object)
				if obj.GetLabels()[labels.KeyStage] == "schema-upgrade" {
					return true, nil, apierrors.NewForbidden(a.GetResource().GroupResource(), obj.GetName(), errors.New("quota exceeded"))
				}
				return false, nil, nil
			})

			result, err := orch.Launch(ctx, cfg.Request())
			Expect(err).To(HaveOccurred())
			Expect(result.Launched).To(BeFalse())
			Expect(result.Jobs).To(HaveLen(2))

			cm, err := clientset.CoreV1().ConfigMaps("apps").Get(ctx, result.StatusRecord, metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(cm.Data[status.KeyStatus]).To(Equal("failed"))
			Expect(cm.Data[status.KeyMessage]).To(ContainSubstring("quota exceeded"))
		})

		It("releases the claim when provisioning fails", func() {
			clientset.PrependReactor("create", "persistentvolumeclaims", func(a k8stesting.Action) (bool, runtime.Object, error) {
				return true, nil, errors.New("storage class not found")
			})

			result, err := orch.Launch(ctx, cfg.Request())
			Expect(err).To(HaveOccurred())
			Expect(result.Launched).To(BeFalse())

			_, err = clientset.CoordinationV1().Leases("apps").Get(ctx, "shop-migration-"+result.RunID+"-lock", metav1.GetOptions{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})
	})

	Context("with the s3 artifact backend", func() {
		var bucket *fakeBucket

		BeforeEach(func() {
			cfg.Artifacts.Backend = config.BackendS3
			cfg.Artifacts.S3 = config.S3Config{
				Endpoint:          "https://s3.local",
				Region:            "eu-central",
				Bucket:            "migrations",
				CredentialsSecret: "s3-creds",
				AccessKeyKey:      "access_key",
				SecretKeyKey:      "secret_key",
			}
			bucket = &fakeBucket{}
			orch, clientset = newTestOrchestrator(cfg, WithBucketFactory(bucket.factory))

			_, err := clientset.CoreV1().Secrets("apps").Create(ctx, &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: "s3-creds", Namespace: "apps"},
				Data:       map[string][]byte{"access_key": []byte("AK"), "secret_key": []byte("SK")},
			}, metav1.CreateOptions{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("ensures the bucket with credentials from the secret", func() {
			result, err := orch.Launch(ctx, cfg.Request())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Launched).To(BeTrue())
			Expect(bucket.buckets).To(Equal([]string{"migrations"}))
			Expect(bucket.opts.AccessKey).To(Equal("AK"))
			Expect(bucket.opts.SecretKey).To(Equal("SK"))

			pvcs, err := clientset.CoreV1().PersistentVolumeClaims("apps").List(ctx, metav1.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(pvcs.Items).To(BeEmpty())
		})

		It("lists the run's artifacts in its status", func() {
			result, err := orch.Launch(ctx, cfg.Request())
			Expect(err).NotTo(HaveOccurred())

			bucket.objects = []string{
				"runs/" + result.RunID + "/manifest.json",
				"runs/" + result.RunID + "/markers/extract",
				"runs/0000deadbeef/manifest.json",
			}

			st, err := orch.Status(ctx, "1.0.0", "1.4.2")
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Artifacts).To(Equal([]string{"manifest.json", "markers/extract"}))
			Expect(bucket.lists).To(ContainElement("migrations/runs/" + result.RunID + "/"))
		})

		It("still reports the status when the bucket cannot be listed", func() {
			_, err := orch.Launch(ctx, cfg.Request())
			Expect(err).NotTo(HaveOccurred())
			bucket.listErr = errors.New("access denied")

			st, err := orch.Status(ctx, "1.0.0", "1.4.2")
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Record.Status).To(Equal(status.StatePending))
			Expect(st.Artifacts).To(BeEmpty())
		})
	})

	Context("cancellation", func() {
		It("fails the run, deletes its jobs and releases the claim", func() {
			result, err := orch.Launch(ctx, cfg.Request())
			Expect(err).NotTo(HaveOccurred())

			rec, err := orch.Cancel(ctx, "1.0.0", "1.4.2")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.CancelRequested).To(BeTrue())
			Expect(rec.Status).To(Equal(status.StateFailed))
			Expect(rec.Message).To(Equal(CancelMessage))

			Expect(listJobs()).To(BeEmpty())
			_, err = clientset.CoordinationV1().Leases("apps").Get(ctx, "shop-migration-"+result.RunID+"-lock", metav1.GetOptions{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())

			By("refusing to reuse the cancelled run's record")
			_, err = orch.Launch(ctx, cfg.Request())
			Expect(errors.Is(err, ErrRunExists)).To(BeTrue())
		})

		It("reports unknown runs", func() {
			_, err := orch.Cancel(ctx, "2.0.0", "2.1.0")
			Expect(errors.Is(err, ErrRunNotFound)).To(BeTrue())
		})
	})
})
