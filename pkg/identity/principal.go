// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package identity binds bearer tokens to principals. A token is either a
// service account key looked up directly, or an OIDC JWT whose email claim
// is resolved against the registered users.
package identity

import (
	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/model"
)

// PrincipalKind discriminates the principal variants.
type PrincipalKind string

// Principal kinds.
const (
	KindAnonymous      PrincipalKind = "Anonymous"
	KindUser           PrincipalKind = "User"
	KindServiceAccount PrincipalKind = "ServiceAccount"
)

// Principal is the authenticated identity of a call. The zero value is
// anonymous.
type Principal struct {
	Kind           PrincipalKind
	User           *model.User
	ServiceAccount *model.ServiceAccount
}

// Anonymous is the principal of calls that carried no credential.
var Anonymous = Principal{Kind: KindAnonymous}

// IsAnonymous reports whether the call carried no usable credential.
func (p Principal) IsAnonymous() bool {
	return p.Kind == KindAnonymous || p.Kind == ""
}

// Subject returns the authorization subject reference of the principal.
func (p Principal) Subject() (subjectType, subjectID string) {
	switch p.Kind {
	case KindUser:
		return authz.TypeUser, p.User.ID.String()
	case KindServiceAccount:
		return authz.TypeServiceAccount, p.ServiceAccount.ID.String()
	}
	return "", ""
}

// Email returns the principal's email where one exists.
func (p Principal) Email() string {
	if p.Kind == KindUser {
		return p.User.Email
	}
	return ""
}

// DisplayName returns a log-friendly identification of the principal.
func (p Principal) DisplayName() string {
	switch p.Kind {
	case KindUser:
		return "user:" + p.User.Email
	case KindServiceAccount:
		return "service_account:" + p.ServiceAccount.Name
	}
	return "anonymous"
}
