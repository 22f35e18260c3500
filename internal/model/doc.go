// Package model defines the domain types shared by every layer of the
// boarding core: queue entries, resources, reservations, timeout views and
// the error taxonomy returned by coordinator operations.
//
// Subject and resource identifiers are canonicalized with Unicode NFC
// normalization before they reach storage, so two visually identical
// identifiers always refer to the same queue entry or reservation.
package model
