// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam provides raw, undecoded access to BAM records on top of the
// BGZF and SAM packages in github.com/biogo/hts.
//
// A Reader yields each record as its serialized bytes together with the
// virtual offset it starts at, and can seek back to any such offset. A Writer
// emits records as BAM, uncompressed BAM, or SAM. Records are decoded only
// when SAM text is requested.
package bam
