// Package model defines stable boundary types for API layers.
//
// Proof bytes and receipts are carried in their canonical encodings; these
// structs only frame them for JSON transport.
package model
