package deploy

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/microbs-io/microbs/internal/state"
)

// SecretName is the single cluster-wide secret holding the flattened state.
const SecretName = "microbs-secrets"

// SecretDriver deletes and creates the deployment secret.
type SecretDriver interface {
	Delete(ctx context.Context, namespace, name string) error
	CreateFromEnvFile(ctx context.Context, namespace, name, path string) error
}

// NewSecretDriver returns the driver named by deployment.secrets.driver.
func NewSecretDriver(name string, runner Runner, kubeContext string) (SecretDriver, error) {
	switch strings.ToLower(name) {
	case "", "kubectl":
		return &KubectlDriver{Runner: runner, Context: kubeContext}, nil
	case "api":
		return &APIDriver{Context: kubeContext}, nil
	default:
		return nil, fmt.Errorf("unknown secrets driver %q (expected kubectl or api)", name)
	}
}

// KubectlDriver shells out to kubectl.
type KubectlDriver struct {
	Runner  Runner
	Context string
}

func (d *KubectlDriver) args(args ...string) []string {
	if d.Context != "" {
		args = append(args, "--context="+d.Context)
	}
	return args
}

func (d *KubectlDriver) Delete(ctx context.Context, namespace, name string) error {
	res, err := d.Runner.Run(ctx, "kubectl", d.args("delete", "secret", name, "--namespace="+namespace), true)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("kubectl delete secret %s: exit %d: %s", name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (d *KubectlDriver) CreateFromEnvFile(ctx context.Context, namespace, name, path string) error {
	res, err := d.Runner.Run(ctx, "kubectl", d.args("create", "secret", "generic", name, "--from-env-file="+path, "--namespace="+namespace), true)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("kubectl create secret %s: exit %d: %s", name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// APIDriver talks to the Kubernetes API directly. The clientset is built on
// first use since the cluster may not exist when the driver is created.
type APIDriver struct {
	Client  kubernetes.Interface
	Context string
}

func (d *APIDriver) client() (kubernetes.Interface, error) {
	if d.Client == nil {
		cs, err := NewClientset(d.Context)
		if err != nil {
			return nil, err
		}
		d.Client = cs
	}
	return d.Client, nil
}

// NewClientset loads kubeconfig the way kubectl does.
func NewClientset(kubeContext string) (kubernetes.Interface, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		overrides.CurrentContext = kubeContext
	}
	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig for context %q: %w", kubeContext, err)
	}
	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return cs, nil
}

func (d *APIDriver) Delete(ctx context.Context, namespace, name string) error {
	cs, err := d.client()
	if err != nil {
		return err
	}
	err = cs.CoreV1().Secrets(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (d *APIDriver) CreateFromEnvFile(ctx context.Context, namespace, name, path string) error {
	cs, err := d.client()
	if err != nil {
		return err
	}
	values, err := state.ParseEnvFile(path)
	if err != nil {
		return err
	}
	data := make(map[string][]byte, len(values))
	for k, v := range values {
		data[k] = []byte(v)
	}
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "microbs"},
		},
		Type: corev1.SecretTypeOpaque,
		Data: data,
	}
	if _, err := cs.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("create secret %s/%s: %w", namespace, name, err)
	}
	return nil
}
