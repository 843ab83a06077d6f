package orchestrator

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/cypher-asi/aura-swarm/internal/metrics"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// maxReconcileBackoff bounds the exponential backoff applied when the
// watch stream disconnects.
const maxReconcileBackoff = 30 * time.Second

// swarmAgentSelector selects every pod the reconciler watches.
const swarmAgentSelector = "app=swarm-agent"

// StatusUpdater is the narrow registry capability the reconciler needs:
// reading and updating an agent's lifecycle status, without pulling in
// the full control-core API surface.
type StatusUpdater interface {
	GetAgent(agentID models.AgentID) (*models.Agent, error)
	UpdateAgentStatus(agentID models.AgentID, newStatus models.AgentStatus, now time.Time) error
}

// Reconciler drives the registry's recorded agent status toward the
// observed pod state, via a single watch stream over pods labeled as
// swarm agents. The loop is single-threaded, so a given agent_id's events
// are always applied in arrival order, satisfying the concurrency
// model's "serialize per-agent, or globally" requirement the simple
// way.
type Reconciler struct {
	clientset kubernetes.Interface
	namespace string
	registry  StatusUpdater
	endpoints *EndpointCache
}

// NewReconciler builds a Reconciler backed by a real Client's clientset
// and endpoint cache.
func NewReconciler(c *Client, reg StatusUpdater) *Reconciler {
	return &Reconciler{
		clientset: c.clientset,
		namespace: c.namespace,
		registry:  reg,
		endpoints: c.endpoints,
	}
}

// Run drives the reconciliation loop until ctx is cancelled. On stream
// disruption it reconnects with exponential backoff capped at 30s and
// resumes with a list-and-diff to avoid missed events.
func (r *Reconciler) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.resync(ctx); err != nil {
			backoff = minDuration(backoff*2, maxReconcileBackoff)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			continue
		}
		backoff = time.Second

		if err := r.watchOnce(ctx); err != nil {
			backoff = minDuration(backoff*2, maxReconcileBackoff)
			if !sleepOrDone(ctx, backoff) {
				return
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// resync performs a list-and-diff against the current registry state,
// so that events missed during a disconnection are not lost.
func (r *Reconciler) resync(ctx context.Context) error {
	pods, err := r.clientset.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{LabelSelector: swarmAgentSelector})
	if err != nil {
		return err
	}
	for i := range pods.Items {
		r.handlePod(&pods.Items[i])
	}
	return nil
}

func (r *Reconciler) watchOnce(ctx context.Context) error {
	w, err := r.clientset.CoreV1().Pods(r.namespace).Watch(ctx, metav1.ListOptions{LabelSelector: swarmAgentSelector})
	if err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.ResultChan():
			if !ok {
				return nil // channel closed: caller reconnects
			}
			r.handleEvent(event)
		}
	}
}

func (r *Reconciler) handleEvent(event watch.Event) {
	pod, ok := event.Object.(*corev1.Pod)
	if !ok {
		return
	}

	switch event.Type {
	case watch.Added, watch.Modified:
		r.handlePod(pod)
	case watch.Deleted:
		r.handleDeleted(pod)
	}
}

func (r *Reconciler) handlePod(pod *corev1.Pod) {
	label, ok := pod.Labels[AgentLabel]
	if !ok {
		return
	}
	agentID, err := AgentIDFromLabel(label)
	if err != nil {
		return
	}

	if pod.Status.PodIP != "" {
		r.endpoints.Set(agentID, pod.Status.PodIP+":8080")
	}

	derived, ok := derivedStatus(pod)
	if !ok {
		return
	}

	agent, err := r.registry.GetAgent(agentID)
	if err != nil {
		metrics.Reconciliations.WithLabelValues("applied", "not_found").Inc()
		return
	}
	// Hibernation is authoritative: the pod is expected to be absent or
	// transitioning away, so observed phase never overrides it.
	if agent.Status == models.StatusHibernating {
		metrics.Reconciliations.WithLabelValues("applied", "skipped").Inc()
		return
	}
	if agent.Status == derived {
		return
	}
	if err := r.registry.UpdateAgentStatus(agentID, derived, time.Now()); err != nil {
		metrics.Reconciliations.WithLabelValues("applied", "error").Inc()
		return
	}
	metrics.Reconciliations.WithLabelValues("applied", "ok").Inc()
}

// derivedStatus maps a pod's (phase, ready) to the lifecycle state the
// reconciler should drive the registry toward.
func derivedStatus(pod *corev1.Pod) (models.AgentStatus, bool) {
	switch pod.Status.Phase {
	case corev1.PodRunning:
		if podReady(pod) {
			return models.StatusRunning, true
		}
		return models.StatusProvisioning, true
	case corev1.PodPending:
		return models.StatusProvisioning, true
	case corev1.PodFailed:
		return models.StatusError, true
	default:
		return 0, false
	}
}

func podReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func (r *Reconciler) handleDeleted(pod *corev1.Pod) {
	label, ok := pod.Labels[AgentLabel]
	if !ok {
		return
	}
	agentID, err := AgentIDFromLabel(label)
	if err != nil {
		return
	}
	r.endpoints.Evict(agentID)

	agent, err := r.registry.GetAgent(agentID)
	if err != nil {
		// Open question resolved: a delete observed after the agent
		// record itself was already removed (race with user-initiated
		// delete) is treated as success, nothing further to do.
		metrics.Reconciliations.WithLabelValues("deleted", "not_found").Inc()
		return
	}
	if agent.Status == models.StatusHibernating {
		metrics.Reconciliations.WithLabelValues("deleted", "skipped").Inc()
		return
	}
	if err := r.registry.UpdateAgentStatus(agentID, models.StatusStopped, time.Now()); err != nil {
		metrics.Reconciliations.WithLabelValues("deleted", "error").Inc()
		return
	}
	metrics.Reconciliations.WithLabelValues("deleted", "ok").Inc()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
