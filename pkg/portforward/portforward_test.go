package portforward

// based on https://github.com/justinbarrick/go-k8s-portforward
// licensed under the Apache License 2.0

import (
	"testing"

	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newPod(name string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		TypeMeta: metav1.TypeMeta{
			Kind:       "Pod",
			APIVersion: "v1",
		},
		ObjectMeta: metav1.ObjectMeta{
			Labels: labels,
			Name:   name,
		},
	}
}

func selectorFor(name string) metav1.LabelSelector {
	return metav1.LabelSelector{MatchLabels: map[string]string{"name": name}}
}

func TestFindPod(t *testing.T) {
	pf := PortForward{
		Clientset: fake.NewSimpleClientset(
			newPod("pod1", map[string]string{"name": "other"}),
			newPod("pod2", map[string]string{"name": "converged"}),
			newPod("pod3", map[string]string{})),
		Selector: selectorFor("converged"),
	}

	pod, err := pf.findPod()
	assert.NoError(t, err)
	assert.Equal(t, "pod2", pod)
}

func TestFindPodNoneExist(t *testing.T) {
	pf := PortForward{
		Clientset: fake.NewSimpleClientset(
			newPod("pod1", map[string]string{"name": "other"})),
		Selector: selectorFor("converged"),
	}

	_, err := pf.findPod()
	assert.Error(t, err)
	assert.Equal(t, `could not find running pod for selector: labels "name=converged"`, err.Error())
}

func TestFindPodAmbiguous(t *testing.T) {
	pf := PortForward{
		Clientset: fake.NewSimpleClientset(
			newPod("pod1", map[string]string{"name": "converged"}),
			newPod("pod2", map[string]string{"name": "converged"})),
		Selector: selectorFor("converged"),
	}

	_, err := pf.findPod()
	assert.Error(t, err)
	assert.Equal(t, `found more than one pod for selector: labels "name=converged"`, err.Error())
}

func TestFindPodByExpression(t *testing.T) {
	pf := PortForward{
		Clientset: fake.NewSimpleClientset(
			newPod("pod1", map[string]string{"name": "other"}),
			newPod("pod2", map[string]string{"name": "converged-beta"})),
		Selector: metav1.LabelSelector{
			MatchExpressions: []metav1.LabelSelectorRequirement{
				{
					Key:      "name",
					Operator: metav1.LabelSelectorOpIn,
					Values:   []string{"converged", "converged-beta"},
				},
			},
		},
	}

	pod, err := pf.findPod()
	assert.NoError(t, err)
	assert.Equal(t, "pod2", pod)
}

func TestFindPodNoSelector(t *testing.T) {
	pf := PortForward{Clientset: fake.NewSimpleClientset()}
	_, err := pf.findPod()
	assert.Error(t, err)
}

func TestFreePort(t *testing.T) {
	port, err := freePort()
	assert.NoError(t, err)
	assert.NotZero(t, port)
}
