// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"sync"
)

// Fake is an in-memory Service used for testing. Results are looked up by
// host (tokens) or key (secure strings); unset entries fall back to
// DefaultToken and StatusUnknownKey respectively. All calls are recorded.
type Fake struct {
	mu sync.Mutex

	InitErr         error
	Tokens          map[string]Result
	DefaultToken    Result
	TokenErr        error
	SecureStrings   map[string]Result
	SecureStringErr error
	CustomJWT       Result
	CustomJWTErr    error
	Pins            PinSet
	DeviceID        string
	SigningKey      []byte
	DynamicConfig   []byte

	InitConfig          string
	InitDynamicConfig   []byte
	UserProperty        string
	DataHashes          []string
	TokenFetches        []string
	SecureStringFetches []string
	Definitions         map[string]string
	CustomJWTPayloads   []string
	PinFetches          int
}

// NewFake returns a Fake whose token fetches succeed with token.
func NewFake(token string) *Fake {
	return &Fake{
		Tokens:        map[string]Result{},
		DefaultToken:  Result{Status: StatusSuccess, Token: token},
		SecureStrings: map[string]Result{},
		Pins:          PinSet{},
		Definitions:   map[string]string{},
	}
}

// SetSecureString makes key resolve successfully to value.
func (o *Fake) SetSecureString(key, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.SecureStrings == nil {
		o.SecureStrings = map[string]Result{}
	}
	o.SecureStrings[key] = Result{Status: StatusSuccess, SecureString: &value}
}

func (o *Fake) Initialize(config string, dynamicConfig []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.InitConfig = config
	o.InitDynamicConfig = dynamicConfig

	return o.InitErr
}

func (o *Fake) SetUserProperty(property string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.UserProperty = property
}

func (o *Fake) FetchToken(hostOrURL string) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.fetchToken(hostOrURL)
}

func (o *Fake) fetchToken(hostOrURL string) (Result, error) {
	o.TokenFetches = append(o.TokenFetches, hostOrURL)

	if o.TokenErr != nil {
		return Result{}, o.TokenErr
	}

	if res, ok := o.Tokens[hostOrURL]; ok {
		return res, nil
	}

	return o.DefaultToken, nil
}

func (o *Fake) FetchTokenAsync(callback TokenCallback, hostOrURL string) {
	go func() {
		o.mu.Lock()
		res, err := o.fetchToken(hostOrURL)
		o.mu.Unlock()

		if err != nil {
			res = Result{Status: StatusOtherFailure}
		}
		callback(res)
	}()
}

func (o *Fake) FetchSecureString(key string, newDef *string) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.SecureStringFetches = append(o.SecureStringFetches, key)

	if o.SecureStringErr != nil {
		return Result{}, o.SecureStringErr
	}

	if newDef != nil {
		if o.Definitions == nil {
			o.Definitions = map[string]string{}
		}
		o.Definitions[key] = *newDef
		if *newDef == "" {
			delete(o.SecureStrings, key)
			return Result{Status: StatusSuccess}, nil
		}
		value := *newDef
		return Result{Status: StatusSuccess, SecureString: &value}, nil
	}

	if res, ok := o.SecureStrings[key]; ok {
		return res, nil
	}

	return Result{Status: StatusUnknownKey}, nil
}

func (o *Fake) FetchCustomJWT(payload string) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.CustomJWTPayloads = append(o.CustomJWTPayloads, payload)

	return o.CustomJWT, o.CustomJWTErr
}

func (o *Fake) SetDataHashInToken(data string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.DataHashes = append(o.DataHashes, data)

	return nil
}

func (o *Fake) GetPins(pinType string) PinSet {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.PinFetches++

	if pinType != PinTypePublicKeySHA256 {
		return PinSet{}
	}

	// hand out a copy so callers never alias the fake's state
	pins := make(PinSet, len(o.Pins))
	for host, hostPins := range o.Pins {
		pins[host] = append([]string{}, hostPins...)
	}

	return pins
}

func (o *Fake) GetDeviceID() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.DeviceID, nil
}

func (o *Fake) GetMessageSignature(message string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mac := hmac.New(sha256.New, o.SigningKey)
	mac.Write([]byte(message))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (o *Fake) FetchConfig() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.DynamicConfig
}

// Snapshot helpers, safe to call while background fetches are running.

func (o *Fake) TokenFetchCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.TokenFetches)
}

func (o *Fake) SecureStringFetchCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.SecureStringFetches)
}
