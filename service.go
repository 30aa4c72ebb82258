// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/approov/approov-service-go/pinning"
	"github.com/approov/approov-service-go/sdk"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	userProperty = "approov-service-go"

	// prefetchHost is a placeholder domain: the fetch only warms the SDK cache
	prefetchHost = "www.approov.io"

	precheckKey = "precheck-dummy-key"
)

// Options holds the construction parameters of a Service
type Options struct {
	// Config is the initial account configuration string
	Config string

	// Logger receives the service logs; nil discards them
	Logger *zap.Logger

	// HostnameVerifier is the baseline check run before pinning; nil selects
	// pinning.DefaultHostnameVerifier
	HostnameVerifier pinning.HostnameVerifier

	// Store persists the dynamic SDK configuration under ConfigFile and
	// ConfigKey (which default to DefaultConfigFile and DefaultConfigKey). It
	// is optional.
	Store      ConfigStore
	ConfigFile string
	ConfigKey  string
}

// Service mediates the use of the Attestation Service for outgoing requests.
// Configuration setters and the mediation entry points (AddApproov,
// SubstituteQueryParam, Prefetch) are serialized by a single lock, so at most
// one of them runs at a time and each observes a consistent configuration.
type Service struct {
	mu sync.Mutex

	sdk        sdk.Service
	log        *zap.Logger
	store      ConfigStore
	configFile string
	configKey  string

	// verifier is nil iff initErr is not
	verifier *pinning.Verifier
	initErr  error

	cfg config
}

// NewService initializes the Attestation Service and wraps it. An
// initialization failure is logged and remembered: the returned Service then
// fails every operation with an ErrNotInitialized error.
func NewService(attestation sdk.Service, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Service{
		sdk:        attestation,
		log:        logger.Named("approov").With(zap.String("service_id", uuid.NewString())),
		store:      opts.Store,
		configFile: opts.ConfigFile,
		configKey:  opts.ConfigKey,
		cfg:        newConfig(),
	}

	if o.configFile == "" {
		o.configFile = DefaultConfigFile
	}

	if o.configKey == "" {
		o.configKey = DefaultConfigKey
	}

	if attestation == nil {
		o.initErr = errors.New("no attestation service supplied")
		o.log.Error("Approov initialization failed", zap.Error(o.initErr))
		return o
	}

	var dynamicConfig []byte
	if o.store != nil {
		var err error
		if dynamicConfig, err = o.store.Load(o.configFile, o.configKey); err != nil {
			o.log.Warn("loading dynamic configuration failed", zap.Error(err))
			dynamicConfig = nil
		}
	}

	if err := attestation.Initialize(opts.Config, dynamicConfig); err != nil {
		o.initErr = err
		o.log.Error("Approov initialization failed", zap.Error(err))
		return o
	}

	attestation.SetUserProperty(userProperty)

	o.verifier = pinning.NewVerifier(opts.HostnameVerifier, pinning.FromService(attestation), o.log)

	return o
}

// Initialized reports whether the Attestation Service started successfully
func (o *Service) Initialized() bool {
	return o.initErr == nil
}

// Verifier returns the pinning verifier, or nil if the service is not
// initialized.
func (o *Service) Verifier() *pinning.Verifier {
	return o.verifier
}

func (o *Service) checkInitialized() error {
	if o.initErr != nil {
		return notInitializedError(o.initErr)
	}
	return nil
}

// SetProceedOnNetworkFail sets whether requests proceed, without a token or
// substitutions, when the token or a secure string cannot be fetched because
// of network conditions. Backends may then receive calls without the expected
// Approov token header.
func (o *Service) SetProceedOnNetworkFail(proceed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cfg.proceedOnNetworkFail = proceed
}

// SetTokenHeader sets the header the token is added on, and a prefix (such as
// "Bearer ") placed before it.
func (o *Service) SetTokenHeader(header, prefix string) error {
	if err := checkHeaderName(header); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.cfg.tokenHeader = header
	o.cfg.tokenPrefix = prefix

	return nil
}

// SetBindingHeader sets a header whose value is hashed into the tokens
// fetched for requests carrying it. An empty header removes the binding.
func (o *Service) SetBindingHeader(header string) error {
	if header != "" {
		if err := checkHeaderName(header); err != nil {
			return err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.cfg.bindingHeader = header

	return nil
}

// AddSubstitutionHeader marks header for secure string substitution: a value
// of the form requiredPrefix+key is replaced with requiredPrefix+secret.
func (o *Service) AddSubstitutionHeader(header, requiredPrefix string) error {
	if err := checkHeaderName(header); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.cfg.substitutionHeaders[header] = requiredPrefix

	return nil
}

// RemoveSubstitutionHeader undoes AddSubstitutionHeader
func (o *Service) RemoveSubstitutionHeader(header string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.cfg.substitutionHeaders, header)
}

// AddExclusionURLRegex excludes requests whose URL matches pattern from any
// token or substitution work. Pinning still applies to them.
func (o *Service) AddExclusionURLRegex(pattern string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.cfg.exclusions.add(pattern)
}

// RemoveExclusionURLRegex undoes AddExclusionURLRegex
func (o *Service) RemoveExclusionURLRegex(pattern string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cfg.exclusions.remove(pattern)
}

// SetUnknownURLSubstitution sets the policy applied when a header
// substitution succeeds for a host that is not an added API domain.
func (o *Service) SetUnknownURLSubstitution(policy UnknownURLSubstitution) error {
	if policy != UnknownURLReject && policy != UnknownURLAllow {
		return fmt.Errorf("unexpected UnknownURLSubstitution %q", string(policy))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.cfg.unknownURL = policy

	return nil
}

// Configure replaces the whole configuration with the one described by cfg
// (see Settings for the recognized fields). On error the current
// configuration is left untouched.
func (o *Service) Configure(cfg map[string]interface{}) error {
	settings, err := decodeSettings(cfg)
	if err != nil {
		return err
	}

	c, err := settings.build()
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.cfg = c

	return nil
}

// Prefetch starts a background token fetch so that a subsequent fetch can be
// served from the SDK cache. The result is only logged.
func (o *Service) Prefetch() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initErr != nil {
		return
	}

	o.sdk.FetchTokenAsync(o.prefetchDone, prefetchHost)
}

func (o *Service) prefetchDone(res sdk.Result) {
	// the placeholder host is never an added domain
	if res.Status == sdk.StatusUnknownURL {
		o.log.Debug("prefetch success")
		return
	}

	o.log.Error("prefetch failure", zap.Stringer("status", res.Status))
}

// Precheck determines whether the app would pass attestation, by looking up a
// secure string that does not exist. It returns a rejection error (with the
// ARC and reasons) if the app fails attestation, or a network error if the
// check could not be made.
func (o *Service) Precheck() error {
	if err := o.checkInitialized(); err != nil {
		return err
	}

	res, err := o.sdk.FetchSecureString(precheckKey, nil)
	if err != nil {
		return wrapSDKError(err)
	}

	o.log.Debug("precheck", zap.Stringer("status", res.Status))

	return checkResult("precheck", res, false, true)
}

// FetchSecureString fetches the secure string for key. If newDef is not nil,
// an instance specific value is defined (an empty string removes it) and
// returned. The boolean reports whether the string is defined. The value must
// not be cached by the caller.
func (o *Service) FetchSecureString(key string, newDef *string) (string, bool, error) {
	if err := o.checkInitialized(); err != nil {
		return "", false, err
	}

	kind := "lookup"
	if newDef != nil {
		kind = "definition"
	}

	res, err := o.sdk.FetchSecureString(key, newDef)
	if err != nil {
		return "", false, wrapSDKError(err)
	}

	o.log.Debug("fetchSecureString", zap.String("type", kind), zap.String("key", key), zap.Stringer("status", res.Status))

	op := fmt.Sprintf("fetchSecureString %s for %s", kind, key)
	if err := checkResult(op, res, false, true); err != nil {
		return "", false, err
	}

	if res.SecureString == nil {
		return "", false, nil
	}

	return *res.SecureString, true, nil
}

// FetchCustomJWT fetches a JWT signed by the Approov cloud for the marshaled
// JSON claims in payload.
func (o *Service) FetchCustomJWT(payload string) (string, error) {
	if err := o.checkInitialized(); err != nil {
		return "", err
	}

	res, err := o.sdk.FetchCustomJWT(payload)
	if err != nil {
		return "", wrapSDKError(err)
	}

	o.log.Debug("fetchCustomJWT", zap.Stringer("status", res.Status))

	if err := checkResult("fetchCustomJWT", res, false, false); err != nil {
		return "", err
	}

	return res.Token, nil
}

// FetchCustomJWTClaims is FetchCustomJWT for a claim set
func (o *Service) FetchCustomJWTClaims(claims jwt.Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshaling custom JWT claims: %w", err)
	}

	return o.FetchCustomJWT(string(payload))
}

// SetDataHashInToken includes a hash of data in subsequently fetched tokens.
func (o *Service) SetDataHashInToken(data string) error {
	if err := o.checkInitialized(); err != nil {
		return err
	}

	if err := o.sdk.SetDataHashInToken(data); err != nil {
		return wrapSDKError(err)
	}

	return nil
}

// GetDeviceID returns the device identifier used by Approov.
func (o *Service) GetDeviceID() (string, error) {
	if err := o.checkInitialized(); err != nil {
		return "", err
	}

	id, err := o.sdk.GetDeviceID()
	if err != nil {
		return "", wrapSDKError(err)
	}

	return id, nil
}

// GetMessageSignature returns the base64 signature of message, made with the
// per-install message signing key.
func (o *Service) GetMessageSignature(message string) (string, error) {
	if err := o.checkInitialized(); err != nil {
		return "", err
	}

	sig, err := o.sdk.GetMessageSignature(message)
	if err != nil {
		return "", wrapSDKError(err)
	}

	return sig, nil
}

// Pins returns the current public-key-sha256 pins.
func (o *Service) Pins() (sdk.PinSet, error) {
	if err := o.checkInitialized(); err != nil {
		return nil, err
	}

	return o.sdk.GetPins(sdk.PinTypePublicKeySHA256), nil
}

// SaveDynamicConfig persists the current dynamic SDK configuration to the
// configured store.
func (o *Service) SaveDynamicConfig() error {
	if err := o.checkInitialized(); err != nil {
		return err
	}

	if o.store == nil {
		return errors.New("no config store supplied")
	}

	if err := o.store.Save(o.configFile, o.configKey, o.sdk.FetchConfig()); err != nil {
		return fmt.Errorf("saving dynamic configuration: %w", err)
	}

	return nil
}

// checkResult classifies a fetch outcome. Network failures are suppressed
// when proceedOnNetworkFail is set, and StatusUnknownKey when unknownKeyOK.
func checkResult(op string, res sdk.Result, proceedOnNetworkFail, unknownKeyOK bool) error {
	switch {
	case res.Status == sdk.StatusSuccess:
		return nil
	case res.Status == sdk.StatusRejected:
		return newRejectionError(op, res)
	case res.Status.IsNetworkFailure():
		if proceedOnNetworkFail {
			return nil
		}
		return newNetworkError("%s: %s", op, res.Status)
	case res.Status == sdk.StatusUnknownKey && unknownKeyOK:
		return nil
	default:
		return newPermanentError("%s: %s", op, res.Status)
	}
}
