// Package credential persists the API key used to authenticate to the
// classification service.
//
// The key is stored under the name "companyApiKey" in one of these backends:
//   - DatabaseStore: the settings table of the SQLite database (default)
//   - KeyringStore: the operating system keychain, via go-keyring
//   - MemoryStore: process memory, for tests and one-shot runs
//
// Keys are never logged or printed; Fingerprint gives a short, stable
// identifier that can be shown instead.
package credential
