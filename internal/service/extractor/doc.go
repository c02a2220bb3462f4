// Package extractor unpacks downloaded release assets into package directories.
//
// Archives (tar, zip, rar and tarballs wrapped in gz, bz2, xz or zst) are
// buffered to a scratch file and unpacked entry by entry; any other payload is
// streamed verbatim. Entries that would escape the output directory are rejected.
package extractor
