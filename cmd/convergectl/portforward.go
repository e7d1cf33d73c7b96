package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/convergeproj/converge/pkg/portforward"
)

// Attempt port forwards to daemons matching the label selectors, in
// order, until one is found or a hard error is returned.
func tryPortforwards(ns string, selectors ...metav1.LabelSelector) (p *portforward.PortForward, err error) {
	message := fmt.Sprintf("converged pod not found for labels in namespace %s:", ns)

	for _, selector := range selectors {
		p, err = tryPortforward(ns, selector)
		if err == nil {
			return
		}

		if !strings.Contains(err.Error(), "could not find running pod for selector") {
			return
		}
		message = fmt.Sprintf("%s\n  %s", message, metav1.FormatLabelSelector(&selector))
	}

	if err != nil {
		err = errors.New(message)
	}
	return
}

func tryPortforward(ns string, selector metav1.LabelSelector) (*portforward.PortForward, error) {
	forwarder, err := portforward.New(ns, selector, 3030)
	if err != nil {
		return forwarder, err
	}
	if err := forwarder.Start(); err != nil {
		return forwarder, err
	}
	return forwarder, nil
}
