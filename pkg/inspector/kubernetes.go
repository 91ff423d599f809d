package inspector

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	v1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	restclient "k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
	"k8s.io/client-go/util/homedir"
)

// PodRunner runs commands in a pod container through the exec subresource.
type PodRunner struct {
	KClient   kubernetes.Interface
	KConfig   *restclient.Config
	Namespace string
	Pod       string
	Container string
}

func DialPod(ctx context.Context, kubeconfig, namespace, pod, container string) (*PodRunner, error) {
	kconfig, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath(kubeconfig))
	if err != nil {
		return nil, fmt.Errorf("cannot initialize kubernetes environment: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(kconfig)
	if err != nil {
		return nil, err
	}

	return &PodRunner{
		KClient:   clientset,
		KConfig:   kconfig,
		Namespace: namespace,
		Pod:       pod,
		Container: container,
	}, nil
}

func (p *PodRunner) Run(ctx context.Context, cmd string) (string, error) {
	req := p.KClient.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(p.Pod).
		Namespace(p.Namespace).SubResource("exec")
	if p.Container != "" {
		req = req.Param("container", p.Container)
	}

	option := &v1.PodExecOptions{
		Command: []string{"sh", "-c", cmd},
		Stdin:   false,
		Stdout:  true,
		Stderr:  true,
		TTY:     false,
	}
	req.VersionedParams(
		option,
		scheme.ParameterCodec,
	)

	var stdout, stderr bytes.Buffer

	exec, err := remotecommand.NewSPDYExecutor(p.KConfig, "POST", req.URL())
	if err != nil {
		return "", err
	}

	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  nil,
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

func (p *PodRunner) Close() error {
	return nil
}

// kubeconfigPath resolves the kubeconfig the same way kubectl, k3s and k0s lay it out
func kubeconfigPath(explicit string) string {
	if explicit != "" && explicit != "default" {
		return explicit
	}

	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}

	candidates := []string{}
	if home := homedir.HomeDir(); home != "" {
		candidates = append(candidates, filepath.Join(home, ".kube", "config"))
	}
	candidates = append(candidates,
		"/etc/kubernetes/admin.conf",
		// for k3s
		"/etc/rancher/k3s/k3s.yaml",
		// for k0s
		"/var/lib/k0s/pki/admin.conf",
	)

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	// empty path makes client-go use the in-cluster config
	return ""
}
