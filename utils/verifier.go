package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/badoux/checkmail"
	"github.com/likexian/whois"
	"github.com/sirupsen/logrus"
)

// AddressVerifier vets recipient addresses at the trigger boundary: syntax,
// disposable domains, and MX records. A rejected address means the trigger
// is invalid and no sequence state is created.
type AddressVerifier struct {
	Logger *logrus.Entry

	// SkipNetworkChecks disables MX lookups (offline and test runs).
	SkipNetworkChecks bool

	mu      sync.RWMutex
	mxCache map[string]error
}

func NewAddressVerifier(logger *logrus.Entry) *AddressVerifier {
	return &AddressVerifier{
		Logger:  logger,
		mxCache: make(map[string]error),
	}
}

var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"throwawaymail.com": {},
	"yopmail.com":       {},
	"trashmail.com":     {},
	"getnada.com":       {},
	"sharklasers.com":   {},
	"maildrop.cc":       {},
}

// Common typos of major providers; a typo'd domain would bounce anyway.
var commonTypos = map[string]string{
	"gmai.com":   "gmail.com",
	"gmal.com":   "gmail.com",
	"gmail.co":   "gmail.com",
	"yaho.com":   "yahoo.com",
	"hotmai.com": "hotmail.com",
	"outlok.com": "outlook.com",
}

// Check reports nil for a deliverable-looking address and a descriptive
// error otherwise.
func (v *AddressVerifier) Check(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := checkmail.ValidateFormat(email); err != nil {
		return fmt.Errorf("invalid email format: %v", err)
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("invalid email format")
	}
	domain := parts[1]

	if suggested, ok := commonTypos[domain]; ok {
		return fmt.Errorf("possible typo in domain %s, did you mean %s?", domain, suggested)
	}
	if _, ok := disposableDomains[domain]; ok {
		return fmt.Errorf("disposable email domain %s", domain)
	}

	if v.SkipNetworkChecks {
		return nil
	}
	return v.validateHost(domain)
}

func (v *AddressVerifier) validateHost(domain string) error {
	v.mu.RLock()
	cached, ok := v.mxCache[domain]
	v.mu.RUnlock()
	if ok {
		return cached
	}

	err := checkmail.ValidateHost(domain)
	if err != nil {
		err = fmt.Errorf("domain %s has no valid mail host: %v", domain, err)
		// WHOIS context helps operators tell parked domains from outages.
		if info, werr := whois.Whois(domain); werr == nil {
			v.Logger.WithField("domain", domain).
				Debugf("WHOIS for failing domain: %.200s", info)
		}
	}

	v.mu.Lock()
	v.mxCache[domain] = err
	v.mu.Unlock()
	return err
}
