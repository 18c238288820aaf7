// Package codec converts queue values to and from the byte payloads stored in
// the record table.
//
// A Codec is an opaque dumps/loads pair. The store never inspects payload
// bytes; only the Unique policy depends on a property of the codec, namely
// that semantically equal values encode to identical bytes. Canonical
// provides that guarantee:
//   - object keys sorted by UTF-16 code units
//   - strings NFC-normalized
//   - no HTML escaping, no insignificant whitespace
package codec
