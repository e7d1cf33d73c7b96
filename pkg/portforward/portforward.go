// Package portforward tunnels to a converged pod over the Kubernetes
// API, so convergectl works from outside the cluster without the
// daemon's listener being exposed.
package portforward

// based on https://github.com/justinbarrick/go-k8s-portforward
// licensed under the Apache License 2.0

import (
	"fmt"
	"io/ioutil"
	"net"
	"net/http"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/util/httpstream"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// PortForward is one tunnel: a local listener relaying to a port on a
// pod picked by label selector (or by name).
type PortForward struct {
	Config    *rest.Config
	Clientset kubernetes.Interface

	// PodName, if set, wins over Selector.
	PodName  string
	Selector metav1.LabelSelector

	Namespace string
	// RemotePort is the pod port to relay to; ListenPort is picked
	// from the free ports if left zero.
	RemotePort int
	ListenPort int

	stopChan chan struct{}
}

// New sets up a forwarder using the usual kubeconfig loading rules
// (the same ones kubectl follows).
func New(namespace string, selector metav1.LabelSelector, remotePort int) (*PortForward, error) {
	pf := &PortForward{
		Namespace:  namespace,
		Selector:   selector,
		RemotePort: remotePort,
	}

	var err error
	pf.Config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(),
		&clientcmd.ConfigOverrides{},
	).ClientConfig()
	if err != nil {
		return pf, errors.Wrap(err, "loading kubernetes configuration")
	}

	pf.Clientset, err = kubernetes.NewForConfig(pf.Config)
	if err != nil {
		return pf, errors.Wrap(err, "creating kubernetes client")
	}
	return pf, nil
}

// Start opens the tunnel, blocking until it is ready for use.
func (p *PortForward) Start() error {
	p.stopChan = make(chan struct{}, 1)
	readyChan := make(chan struct{}, 1)
	errChan := make(chan error, 1)

	if p.ListenPort == 0 {
		port, err := freePort()
		if err != nil {
			return errors.Wrap(err, "finding a port to bind")
		}
		p.ListenPort = port
	}

	dialer, err := p.dialer()
	if err != nil {
		return err
	}

	ports := []string{fmt.Sprintf("%d:%d", p.ListenPort, p.RemotePort)}
	fw, err := portforward.New(dialer, ports, p.stopChan, readyChan, ioutil.Discard, ioutil.Discard)
	if err != nil {
		return errors.Wrap(err, "constructing port forward")
	}

	go func() {
		errChan <- fw.ForwardPorts()
	}()

	select {
	case err = <-errChan:
		return errors.Wrap(err, "opening port forward")
	case <-readyChan:
		return nil
	}
}

// Stop closes the tunnel.
func (p *PortForward) Stop() {
	p.stopChan <- struct{}{}
}

func (p *PortForward) dialer() (httpstream.Dialer, error) {
	pod := p.PodName
	if pod == "" {
		var err error
		pod, err = p.findPod()
		if err != nil {
			return nil, err
		}
		p.PodName = pod
	}

	url := p.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(p.Namespace).
		Name(pod).
		SubResource("portforward").URL()

	transport, upgrader, err := spdy.RoundTripperFor(p.Config)
	if err != nil {
		return nil, errors.Wrap(err, "creating round tripper")
	}
	return spdy.NewDialer(upgrader, &http.Client{Transport: transport}, "POST", url), nil
}

// findPod resolves the selector to exactly one running pod; zero or
// several is an error, since forwarding to "one of them" would be a
// lottery.
func (p *PortForward) findPod() (string, error) {
	if len(p.Selector.MatchLabels) == 0 && len(p.Selector.MatchExpressions) == 0 {
		return "", errors.New("no pod labels specified")
	}

	formatted := metav1.FormatLabelSelector(&p.Selector)
	pods, err := p.Clientset.CoreV1().Pods(p.Namespace).List(metav1.ListOptions{
		LabelSelector: formatted,
		FieldSelector: fields.OneTermEqualSelector("status.phase", string(corev1.PodRunning)).String(),
	})
	if err != nil {
		return "", errors.Wrap(err, "listing pods")
	}

	switch len(pods.Items) {
	case 0:
		return "", fmt.Errorf("could not find running pod for selector: labels %q", formatted)
	case 1:
		return pods.Items[0].ObjectMeta.Name, nil
	default:
		return "", fmt.Errorf("found more than one pod for selector: labels %q", formatted)
	}
}

func freePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err := listener.Close(); err != nil {
		return 0, err
	}
	return port, nil
}
