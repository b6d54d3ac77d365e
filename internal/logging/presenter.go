// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	autherrors "wayfare/cli/internal/errors"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(autherrors.MessageOf(err)))
}

// FormatAuthError renders an auth runtime error with a title, the displayable
// message and a next step, in the same layout for every kind.
func FormatAuthError(err error) string {
	if err == nil {
		return ""
	}
	kind := autherrors.KindOf(err)

	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(title(kind)))
	b.WriteString("\n\n")
	b.WriteString(Mask(autherrors.MessageOf(err)))
	b.WriteString("\n")
	if hint := hint(kind); hint != "" {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ " + hint))
		b.WriteString("\n")
	}
	if kind == "" || kind == autherrors.NetworkError {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(err.Error())))
	}
	return b.String()
}

// PresentAuthError prints FormatAuthError surrounded by blank lines.
func PresentAuthError(err error) {
	pterm.Println()
	pterm.Println(FormatAuthError(err))
	pterm.Println()
}

func title(k autherrors.Kind) string {
	switch k {
	case autherrors.NetworkError:
		return "Connection Problem"
	case autherrors.RequestTimeout:
		return "Request Timed Out"
	case autherrors.InvalidCredentials, autherrors.AccountLocked:
		return "Sign-in Failed"
	case autherrors.EmailNotVerified, autherrors.EmailNotAllowed, autherrors.EmailTaken, autherrors.WeakPassword:
		return "Account Problem"
	case autherrors.TokenInvalid, autherrors.TokenExpired, autherrors.NotAuthenticated:
		return "Signed Out"
	case autherrors.InsufficientPermissions:
		return "Access Denied"
	case autherrors.BiometricError:
		return "Verification Failed"
	case autherrors.ServerError:
		return "Service Unavailable"
	default:
		return "Something Went Wrong"
	}
}

func hint(k autherrors.Kind) string {
	switch k {
	case autherrors.NetworkError, autherrors.RequestTimeout, autherrors.ServerError:
		return "Check your connection and try again"
	case autherrors.InvalidCredentials:
		return "Double-check your email and password"
	case autherrors.EmailNotVerified:
		return "Open the verification link we emailed you, then run 'wayfare login'"
	case autherrors.TokenInvalid, autherrors.TokenExpired, autherrors.NotAuthenticated:
		return "Run 'wayfare login' to sign in again"
	case autherrors.WeakPassword:
		return "Use at least 8 characters mixing letters, digits and symbols"
	}
	return ""
}
