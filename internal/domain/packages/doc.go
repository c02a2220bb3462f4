// Package packages contains the core domain types of the package manager.
//
// It defines repository identifiers, releases and their assets, the persisted
// InstalledPackage record, per-invocation Preferences, the on-disk Layout and
// the error taxonomy shared by every service.
package packages
