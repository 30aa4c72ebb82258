// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

// Package sdk defines the boundary to the Approov SDK (the Attestation
// Service) and a Fake implementation of it for tests.
package sdk
