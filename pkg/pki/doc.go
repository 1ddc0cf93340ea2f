// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package pki manages the X.509 material PEPPOL access points sign with.

A Manager keeps one certificate and RSA private key per participant in a
CertStore. FileStore writes certificates world-readable and keys owner-only;
other stores only need Get, Put and Chmod.

	store, _ := pki.NewFileStore("/var/lib/peppol/certs")
	mgr := pki.New(store, pki.WithLogger(logger))
	_, err := mgr.InstallCertificate(ctx, certPEM, keyPEM, "0088:5790000435968")

InstallCertificate refuses certificates that fail ValidateCertificate and
keys that do not match the certificate's public key.

# Operations

  - GenerateCertificateRequest: RSA key pair and CSR with the PEPPOL key usages
  - ValidateCertificate: checklist plus full certificate metadata
  - SignMessage / VerifySignature: detached PKCS#1 v1.5 signatures
  - CreateSecurityToken / ValidateSecurityToken: RS256 JWTs bound to a participant
  - SignEnvelope / VerifyEnvelope: WS-Security XML signatures on AS4 envelopes
*/
package pki
