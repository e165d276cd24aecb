// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/meridian-cloud/meridian/pkg/operation"
)

// DefaultNamespaceRole is the ClusterRole bound when a grant does not name
// one.
const DefaultNamespaceRole = "edit"

// K8s executes namespace access grants against the workload cluster by
// managing one RoleBinding per (namespace, user) pair.
type K8s struct {
	client kubernetes.Interface
}

// NewK8s returns the Kubernetes executor.
func NewK8s(client kubernetes.Interface) *K8s {
	return &K8s{client: client}
}

// Handles implements operation.Executor.
func (e *K8s) Handles(t operation.OpType) bool {
	return t == operation.K8sGrantNs || t == operation.K8sRevokeNs
}

// Execute implements operation.Executor.
func (e *K8s) Execute(ctx context.Context, op *operation.Operation) (types.JSONText, error) {
	var input operation.K8sNsInput
	if err := op.DecodeInput(&input); err != nil {
		return nil, operation.NewExecutorError(operation.ErrKindInvalidInput, err, "malformed namespace grant input")
	}
	if input.Namespace == "" || input.UserEmail == "" {
		return nil, operation.NewExecutorError(operation.ErrKindInvalidInput, nil, "namespace and user email are required")
	}
	role := input.Role
	if role == "" {
		role = DefaultNamespaceRole
	}
	name := bindingName(input.UserEmail, role)

	var err error
	switch op.OpType {
	case operation.K8sGrantNs:
		err = e.grant(ctx, input.Namespace, name, input.UserEmail, role)
	case operation.K8sRevokeNs:
		err = e.revoke(ctx, input.Namespace, name)
	}
	if err != nil {
		return nil, classifyK8sError(err, input.Namespace)
	}
	return types.JSONText(`{}`), nil
}

func (e *K8s) grant(ctx context.Context, namespace, name, userEmail, role string) error {
	binding := &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "meridian"},
		},
		Subjects: []rbacv1.Subject{{
			Kind:     rbacv1.UserKind,
			APIGroup: rbacv1.GroupName,
			Name:     userEmail,
		}},
		RoleRef: rbacv1.RoleRef{
			Kind:     "ClusterRole",
			APIGroup: rbacv1.GroupName,
			Name:     role,
		},
	}
	_, err := e.client.RbacV1().RoleBindings(namespace).Create(ctx, binding, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (e *K8s) revoke(ctx context.Context, namespace, name string) error {
	err := e.client.RbacV1().RoleBindings(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

// bindingName derives a DNS-1123 compatible RoleBinding name from the user
// email and role.
func bindingName(userEmail, role string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, userEmail)
	return fmt.Sprintf("meridian-%s-%s", sanitized, role)
}

func classifyK8sError(err error, namespace string) *operation.ExecutorError {
	switch {
	case apierrors.IsNotFound(err):
		return operation.NewExecutorError(operation.ErrKindNotFound, err, "namespace %s not found", namespace)
	case apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err):
		return operation.NewExecutorError(operation.ErrKindUnauthorized, err, "cluster refused credentials")
	case apierrors.IsInvalid(err) || apierrors.IsBadRequest(err):
		return operation.NewExecutorError(operation.ErrKindInvalidInput, err, "cluster rejected role binding")
	case apierrors.IsTooManyRequests(err) || apierrors.IsServiceUnavailable(err) ||
		apierrors.IsTimeout(err) || apierrors.IsServerTimeout(err) ||
		apierrors.IsInternalError(err):
		return operation.NewExecutorError(operation.ErrKindTemporarilyUnavailable, err, "cluster unavailable")
	}
	if _, ok := err.(apierrors.APIStatus); !ok {
		// Not an API status at all, so the request never reached the
		// apiserver.
		return operation.NewExecutorError(operation.ErrKindConnectivity, err, "cluster unreachable")
	}
	return operation.NewExecutorError(operation.ErrKindInternal, err, "cluster error")
}
