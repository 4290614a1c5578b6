// Package secure keeps secret payloads out of ordinary heap memory while the
// CLI holds them.
//
// A Payload wraps a memguard enclave: the bytes are encrypted
// (XSalsa20Poly1305) and only decrypted into a locked, guard-paged buffer for
// the duration of a Use callback:
//
//	payload, err := secure.ReadPayload(os.Stdin, 0)
//	if err != nil {
//	    return err
//	}
//	defer payload.Destroy()
//
//	err = payload.Use(func(plaintext []byte) error {
//	    _, err := store.AddVersion(ctx, id, plaintext)
//	    return err
//	})
//
// Call memguard.Purge at process exit to wipe every remaining enclave key.
//
// It does NOT protect against:
//
//   - Attackers with root access to the running process
//   - Copies made by the gRPC transport once a payload is sent
//   - Hardware-level attacks (cold boot, DMA)
package secure
