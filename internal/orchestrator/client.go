// Package orchestrator implements the orchestrator driver: it
// creates and deletes agent pods under a microVM runtime class, watches
// their status, and maintains the endpoint cache the edge proxy
// resolves stream targets from.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/logger"
	"github.com/cypher-asi/aura-swarm/internal/models"
	"github.com/rs/zerolog"
)

// Driver is the capability seam the control core depends on for pod
// lifecycle management. Production wires *Client; tests wire an
// in-memory fake (see orchestrator/orchestratortest).
type Driver interface {
	ScheduleAgent(ctx context.Context, agentID models.AgentID, ownerID models.OwnerID, spec models.AgentSpec) error
	TerminateAgent(ctx context.Context, agentID models.AgentID) error
	GetPodEndpoint(ctx context.Context, agentID models.AgentID) (string, error)
	CheckHealth(ctx context.Context, endpoint string) error
	GetLogs(ctx context.Context, agentID models.AgentID, tailLines int64, sinceSeconds int64) (io.ReadCloser, error)
}

// Config configures the pod template and the cluster the driver talks
// to.
type Config struct {
	Namespace              string
	RuntimeClassName       string
	StateDirPath           string
	StatePVCClaimName      string
	ListenAddress          string
	ControlCoreCallbackURL string
}

// Client is the production Driver, backed by a typed client-go
// clientset and a process-local endpoint cache.
type Client struct {
	clientset *kubernetes.Clientset
	namespace string
	cfg       Config
	endpoints *EndpointCache
	log       *zerolog.Logger
}

// NewClient builds a Client, auto-detecting in-cluster config and
// falling back to a local kubeconfig for development.
func NewClient(cfg Config) (*Client, error) {
	restConfig, err := buildRestConfig()
	if err != nil {
		return nil, apierrors.NewInternal("failed to build kubernetes config", err)
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, apierrors.NewInternal("failed to create kubernetes clientset", err)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "aura-swarm"
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	return &Client{
		clientset: clientset,
		namespace: cfg.Namespace,
		cfg:       cfg,
		endpoints: NewEndpointCache(),
		log:       logger.Orchestrator(),
	}, nil
}

func buildRestConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// buildPod constructs the pod template for an agent, per the resource
// requests/limits, volume subpath, probe, and security-context contract.
func (c *Client) buildPod(agentID models.AgentID, ownerID models.OwnerID, spec models.AgentSpec) (*corev1.Pod, error) {
	cpuQty, err := resource.ParseQuantity(fmt.Sprintf("%dm", spec.CPUMillicores))
	if err != nil {
		return nil, fmt.Errorf("invalid cpu_millicores: %w", err)
	}
	memQty, err := resource.ParseQuantity(fmt.Sprintf("%dMi", spec.MemoryMB))
	if err != nil {
		return nil, fmt.Errorf("invalid memory_mb: %w", err)
	}

	runAsNonRoot := true
	runAsUser := int64(1000)
	readOnlyRootFS := true
	dropAll := []corev1.Capability{"ALL"}

	var runtimeClassPtr *string
	if c.cfg.RuntimeClassName != "" {
		runtimeClassPtr = &c.cfg.RuntimeClassName
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      PodName(agentID),
			Namespace: c.namespace,
			Labels: map[string]string{
				"app":      "swarm-agent",
				AgentLabel: agentID.String(),
				OwnerLabel: ownerID.String(),
			},
		},
		Spec: corev1.PodSpec{
			RuntimeClassName: runtimeClassPtr,
			RestartPolicy:    corev1.RestartPolicyNever,
			SecurityContext: &corev1.PodSecurityContext{
				RunAsNonRoot: &runAsNonRoot,
				RunAsUser:    &runAsUser,
			},
			Containers: []corev1.Container{
				{
					Name:  "agent",
					Image: fmt.Sprintf("aura-swarm/agent-runtime:%s", spec.RuntimeVersion),
					Ports: []corev1.ContainerPort{
						{Name: "http", ContainerPort: 8080, Protocol: corev1.ProtocolTCP},
					},
					Env: []corev1.EnvVar{
						{Name: "AGENT_ID", Value: agentID.String()},
						{Name: "OWNER_ID", Value: ownerID.String()},
						{Name: "STATE_DIR", Value: filepath.Join(c.cfg.StateDirPath, agentID.String())},
						{Name: "LISTEN_ADDRESS", Value: c.cfg.ListenAddress},
						{Name: "CONTROL_PLANE_URL", Value: c.cfg.ControlCoreCallbackURL},
					},
					Resources: corev1.ResourceRequirements{
						Requests: corev1.ResourceList{
							corev1.ResourceCPU:    cpuQty,
							corev1.ResourceMemory: memQty,
						},
						Limits: corev1.ResourceList{
							corev1.ResourceCPU:    cpuQty,
							corev1.ResourceMemory: memQty,
						},
					},
					VolumeMounts: []corev1.VolumeMount{
						{
							Name:      "state",
							MountPath: c.cfg.StateDirPath,
							SubPath:   agentID.String(),
						},
					},
					ReadinessProbe: &corev1.Probe{
						ProbeHandler: corev1.ProbeHandler{
							HTTPGet: &corev1.HTTPGetAction{Path: "/health", Port: intstr.FromInt(8080)},
						},
						InitialDelaySeconds: 5,
						PeriodSeconds:       10,
					},
					LivenessProbe: &corev1.Probe{
						ProbeHandler: corev1.ProbeHandler{
							HTTPGet: &corev1.HTTPGetAction{Path: "/health", Port: intstr.FromInt(8080)},
						},
						InitialDelaySeconds: 30,
						PeriodSeconds:       30,
					},
					SecurityContext: &corev1.SecurityContext{
						ReadOnlyRootFilesystem: &readOnlyRootFS,
						Capabilities:           &corev1.Capabilities{Drop: dropAll},
					},
				},
			},
			Volumes: []corev1.Volume{
				{
					Name: "state",
					VolumeSource: corev1.VolumeSource{
						PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
							ClaimName: c.cfg.StatePVCClaimName,
						},
					},
				},
			},
		},
	}
	return pod, nil
}

// ScheduleAgent idempotently creates the agent's pod. If the pod already
// exists this logs and returns success rather than attempting an
// update-in-place, matching the contract.
func (c *Client) ScheduleAgent(ctx context.Context, agentID models.AgentID, ownerID models.OwnerID, spec models.AgentSpec) error {
	pod, err := c.buildPod(agentID, ownerID, spec)
	if err != nil {
		return apierrors.NewInternal("building pod template", err)
	}

	_, err = c.clientset.CoreV1().Pods(c.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		if apierrs.IsAlreadyExists(err) {
			c.log.Info().Str("agent_id", agentID.String()).Msg("schedule_agent: pod already exists, treating as success")
			return nil
		}
		return wrapK8sErr("schedule_agent", err)
	}
	return nil
}

// TerminateAgent deletes the agent's pod. A 404 is success. The
// endpoint cache entry is evicted immediately, regardless of whether
// the pod existed.
func (c *Client) TerminateAgent(ctx context.Context, agentID models.AgentID) error {
	defer c.endpoints.Evict(agentID)

	err := c.clientset.CoreV1().Pods(c.namespace).Delete(ctx, PodName(agentID), metav1.DeleteOptions{})
	if err != nil && !apierrs.IsNotFound(err) {
		return wrapK8sErr("terminate_agent", err)
	}
	return nil
}

// GetPodEndpoint resolves agentID to "ip:8080", checking the cache
// first and querying the orchestrator once on a miss.
func (c *Client) GetPodEndpoint(ctx context.Context, agentID models.AgentID) (string, error) {
	if ep, ok := c.endpoints.Get(agentID); ok {
		return ep, nil
	}

	pod, err := c.clientset.CoreV1().Pods(c.namespace).Get(ctx, PodName(agentID), metav1.GetOptions{})
	if err != nil {
		if apierrs.IsNotFound(err) {
			return "", ErrEndpointUnavailable()
		}
		return "", wrapK8sErr("get_pod_endpoint", err)
	}
	if pod.Status.PodIP == "" {
		return "", ErrEndpointUnavailable()
	}

	endpoint := fmt.Sprintf("%s:8080", pod.Status.PodIP)
	c.endpoints.Set(agentID, endpoint)
	return endpoint, nil
}

// GetLogs streams the agent pod's container log, matching the
// "?tail=&since=" query shape of GET /v1/agents/{id}/logs. A
// non-positive tailLines or sinceSeconds is treated as "unset" (the
// orchestrator's own default applies).
func (c *Client) GetLogs(ctx context.Context, agentID models.AgentID, tailLines int64, sinceSeconds int64) (io.ReadCloser, error) {
	opts := &corev1.PodLogOptions{}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}
	if sinceSeconds > 0 {
		opts.SinceSeconds = &sinceSeconds
	}
	stream, err := c.clientset.CoreV1().Pods(c.namespace).GetLogs(PodName(agentID), opts).Stream(ctx)
	if err != nil {
		return nil, wrapK8sErr("get_logs", err)
	}
	return stream, nil
}

// CheckHealth performs a 5s-deadline GET against the endpoint's /health.
func (c *Client) CheckHealth(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+endpoint+"/health", nil)
	if err != nil {
		return apierrors.NewInternal("building health check request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apierrors.NewUnavailable("agent health check failed: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apierrors.NewUnavailable(fmt.Sprintf("agent health check returned %d", resp.StatusCode))
	}
	return nil
}
