// Package serialization implements the voxnet checkpoint wire format.
//
// A checkpoint is a plain sequence of length-prefixed float32 records:
//
//	Record Structure:
//	  [4 bytes: Count N (int32 LE)]
//	  [N * 4 bytes: float32 values (IEEE-754, LE)]
//
// There is no magic number, version or trailer. The meaning of each record is
// fixed by position; the network package owns that order.
//
// A bare count (used for the optimizer's velocity-buffer count) is written as
// a record header with no payload.
//
// Example usage:
//
//	// Save
//	w := serialization.NewRecordWriter(file)
//	if err := w.WriteFloats(weights); err != nil {
//	    return err
//	}
//	if err := w.Flush(); err != nil {
//	    return err
//	}
//
//	// Load
//	r := serialization.NewRecordReader(file)
//	if err := r.ReadFloatsInto(weights); err != nil {
//	    return err
//	}
package serialization
