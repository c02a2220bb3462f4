// Package engine implements the package lifecycle on top of the release
// resolver, downloader, extractor, publisher and index.
//
// Installation is transactional: a rollback guard is armed before the first
// side effect and undoes the package directory, its links and its index record
// unless the installation commits. Updates reinstall packages whose newest
// eligible release differs from the recorded tag.
package engine
