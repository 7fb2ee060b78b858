// internal/license/keygen.go
package license

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"

	"github.com/keygen-sh/keygen-go/v3"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

// Settings are the Keygen.sh credentials. Validation is skipped unless all
// three product fields are set.
type Settings struct {
	AccountID    string
	ProductToken string
	ProductID    string
	LicenseKey   string
}

// Enabled reports whether Keygen validation is configured.
func (s Settings) Enabled() bool {
	return s.AccountID != "" && s.ProductToken != "" && s.ProductID != ""
}

// KeygenValidator handles license validation using Keygen.sh
type KeygenValidator struct {
	logger   *zap.Logger
	settings Settings

	// validate and activate are swapped out in tests
	validate    func(ctx context.Context, fingerprint string) (*keygen.License, error)
	activate    func(ctx context.Context, l *keygen.License, fingerprint string) (*keygen.Machine, error)
	fingerprint func() (string, error)
}

// NewKeygenValidator configures the Keygen client for settings.
func NewKeygenValidator(settings Settings, logger *zap.Logger) *KeygenValidator {
	kv := &KeygenValidator{
		logger:      logger.Named("license"),
		settings:    settings,
		fingerprint: machineFingerprint,
		validate: func(ctx context.Context, fingerprint string) (*keygen.License, error) {
			return keygen.Validate(ctx, fingerprint)
		},
		activate: func(ctx context.Context, l *keygen.License, fingerprint string) (*keygen.Machine, error) {
			return l.Activate(ctx, fingerprint)
		},
	}
	if settings.Enabled() {
		keygen.Account = settings.AccountID
		keygen.Product = settings.ProductID
		keygen.Token = settings.ProductToken
		keygen.LicenseKey = settings.LicenseKey
	}
	return kv
}

// Check validates the license at startup, activating this machine when the
// license has not been activated on it yet. It is a no-op when Keygen is not
// configured. Every failure wraps domain.ErrConfig.
func (kv *KeygenValidator) Check(ctx context.Context) error {
	if !kv.settings.Enabled() {
		kv.logger.Debug("License validation disabled")
		return nil
	}
	if kv.settings.LicenseKey == "" {
		return fmt.Errorf("license key is required when keygen is configured: %w", domain.ErrConfig)
	}

	kv.logger.Info("🔑 Validating license", zap.String("key", maskKey(kv.settings.LicenseKey)))

	fingerprint, err := kv.fingerprint()
	if err != nil {
		return fmt.Errorf("failed to generate machine fingerprint: %v: %w", err, domain.ErrConfig)
	}

	lic, err := kv.validate(ctx, fingerprint)
	switch {
	case errors.Is(err, keygen.ErrLicenseNotActivated):
		kv.logger.Info("License not activated, attempting activation")
		machine, activateErr := kv.activate(ctx, lic, fingerprint)
		if activateErr != nil {
			return fmt.Errorf("failed to activate license: %v: %w", activateErr, domain.ErrConfig)
		}
		kv.logger.Info("License activated",
			zap.String("machine_id", machine.ID),
			zap.String("fingerprint", fingerprint[:12]))

	case errors.Is(err, keygen.ErrLicenseExpired):
		return fmt.Errorf("license has expired: %w", domain.ErrConfig)

	case err != nil:
		return fmt.Errorf("license validation failed: %v: %w", err, domain.ErrConfig)
	}

	if lic == nil {
		return fmt.Errorf("license not found: %w", domain.ErrConfig)
	}

	kv.logger.Info("License validation successful", zap.String("license_id", lic.ID))
	return nil
}

// maskKey keeps the first eight characters of a license key.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "..."
}

// machineFingerprint hashes the hostname, the first hardware address of an
// up, non-loopback interface and the OS.
func machineFingerprint() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var macAddresses []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			macAddresses = append(macAddresses, iface.HardwareAddr.String())
		}
	}
	if len(macAddresses) == 0 {
		return "", fmt.Errorf("no network interfaces found")
	}
	sort.Strings(macAddresses)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return fingerprintOf(hostname, macAddresses[0], runtime.GOOS), nil
}

func fingerprintOf(hostname, mac, goos string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s", hostname, mac, goos)))
	return fmt.Sprintf("%x", hash)
}
