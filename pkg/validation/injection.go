package validation

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes content that looks like an attack payload.
type InjectionCheckResult struct {
	IsSQLi      bool   // SQL injection pattern detected
	IsXSS       bool   // script injection pattern detected
	Fingerprint string // libinjection fingerprint of the SQL pattern
}

// CheckContent screens item content with libinjection. Returns nil when the
// content is clean.
//
// Example:
//
//	CheckContent("Quarterly roadmap")             // nil
//	CheckContent("' OR 1=1 --")                   // IsSQLi == true
//	CheckContent("<script>alert(1)</script>")     // IsXSS == true
func CheckContent(content string) *InjectionCheckResult {
	if content == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(content)
	isXSS := libinjection.IsXSS(content)
	if !isSQLi && !isXSS {
		return nil
	}

	return &InjectionCheckResult{
		IsSQLi:      isSQLi,
		IsXSS:       isXSS,
		Fingerprint: string(fingerprint),
	}
}
