// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors classifies transport failures and renders user-friendly
// troubleshooting output for them.
package httperrors

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
)

// Class is the broad cause of a transport failure.
type Class int

const (
	ClassOther Class = iota
	ClassTimeout
	ClassDNS
	ClassConnectionRefused
	ClassConnectionReset
	ClassTLS
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassTimeout:
		return "timeout"
	case ClassDNS:
		return "dns"
	case ClassConnectionRefused:
		return "connection_refused"
	case ClassConnectionReset:
		return "connection_reset"
	case ClassTLS:
		return "tls"
	case ClassCanceled:
		return "canceled"
	}
	return "other"
}

// Classify inspects err. A nil error is ClassOther.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassOther
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	case isTimeoutError(err):
		return ClassTimeout
	case isDNSError(err):
		return ClassDNS
	case isConnectionRefusedError(err):
		return ClassConnectionRefused
	case isConnectionResetError(err):
		return ClassConnectionReset
	case isSSLError(err):
		return ClassTLS
	}
	return ClassOther
}

// Describe returns a one-line user-facing summary of a transport failure.
func Describe(err error) string {
	switch Classify(err) {
	case ClassTimeout:
		return "The server took too long to respond."
	case ClassDNS:
		return "Cannot resolve the server address. Check your connection."
	case ClassConnectionRefused:
		return "The server is not accepting connections."
	case ClassConnectionReset:
		return "The connection was interrupted."
	case ClassTLS:
		return "A secure connection could not be established."
	case ClassCanceled:
		return "The request was cancelled."
	}
	return "Cannot reach the server. Check your internet connection."
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isConnectionResetError(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection reset") || strings.Contains(errStr, "broken pipe")
}

func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

// Show prints troubleshooting guidance for a transport failure that happened
// while doing action (e.g. "signing in") against host.
func Show(err error, action, host string) {
	switch Classify(err) {
	case ClassTimeout:
		pterm.Printf("⏱️  Connection timeout while %s\n", action)
		pterm.Println()
		pterm.Println("The server took too long to respond. This could mean:")
		pterm.Println("  • Slow internet connection")
		pterm.Println("  • Server is under heavy load")
		pterm.Println()
		pterm.Println("Please try again in a few moments.")
	case ClassDNS:
		pterm.Printf("🌐 Cannot resolve server address while %s\n", action)
		pterm.Println()
		pterm.Printf("Unable to look up %s. Please check:\n", host)
		pterm.Println("  • Your internet connection is working")
		pterm.Println("  • DNS settings are correct")
	case ClassConnectionRefused:
		pterm.Printf("🚫 Connection refused while %s\n", action)
		pterm.Println()
		pterm.Println("The server is not accepting connections. The service may be down")
		pterm.Println("or the configured base_url may point at the wrong host or port.")
	case ClassTLS:
		pterm.Printf("🔒 Secure connection failed while %s\n", action)
		pterm.Println()
		pterm.Println("Try:")
		pterm.Println("  • Check your system date and time")
		pterm.Println("  • Verify network proxy settings")
	default:
		pterm.Printf("❌ Cannot connect to %s while %s\n", host, action)
		pterm.Println()
		pterm.Println("Please check:")
		pterm.Println("  • Your internet connection")
		pterm.Println("  • Firewall settings that might block HTTPS requests")
		if err != nil {
			details := err.Error()
			if len(details) > 100 {
				details = details[:100] + "..."
			}
			pterm.Debug.Printf("Technical details: %s\n", details)
		}
	}
	pterm.Println()
}

// ExtractHostFromURL extracts the hostname from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
