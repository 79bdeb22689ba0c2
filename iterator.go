// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

// DocumentIterator is the stream shape adapters consume. Next returns the
// next document, or eof=true once the stream is exhausted.
type DocumentIterator interface {
	Next() (doc *Document, eof bool)
}

// sliceIterator iterates over an in-memory document slice.
type sliceIterator struct {
	docs []*Document
	i    int
}

// NewSliceIterator returns an iterator over docs, in order.
func NewSliceIterator(docs []*Document) DocumentIterator {
	return &sliceIterator{docs: docs}
}

// Next returns the next document in the slice.
func (itr *sliceIterator) Next() (*Document, bool) {
	if itr.i >= len(itr.docs) {
		return nil, true
	}
	doc := itr.docs[itr.i]
	itr.i++
	return doc, false
}

// bufIterator wraps an iterator to provide the ability to unread a value,
// which lets callers peek at a stream before committing to consume it.
type bufIterator struct {
	buf struct {
		doc  *Document
		eof  bool
		full bool
	}
	itr DocumentIterator
}

// newBufIterator returns a buffered iterator that wraps itr.
func newBufIterator(itr DocumentIterator) *bufIterator {
	return &bufIterator{itr: itr}
}

// Next returns the next document.
// If a value has been buffered then it is returned and the buffer is cleared.
func (itr *bufIterator) Next() (*Document, bool) {
	if itr.buf.full {
		itr.buf.full = false
		return itr.buf.doc, itr.buf.eof
	}

	// Read values onto buffer in case of unread.
	itr.buf.doc, itr.buf.eof = itr.itr.Next()

	return itr.buf.doc, itr.buf.eof
}

// Peek reads the next value but leaves it on the buffer.
func (itr *bufIterator) Peek() (*Document, bool) {
	doc, eof := itr.Next()
	itr.Unread()
	return doc, eof
}

// Unread pushes the previous document back onto the buffer.
// Panics if the buffer is already full.
func (itr *bufIterator) Unread() {
	if itr.buf.full {
		panic("nvdstore.bufIterator: buffer full")
	}
	itr.buf.full = true
}
