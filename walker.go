package jce

import (
	"errors"
)

// Visitor is an interface that can be implemented to walk a payload at the
// wire level without materializing a tree.
type Visitor interface {
	VisitValue(tag int, typeID TypeID, v any) error
	VisitListStart(tag, length int) error
	VisitListEnd(tag int) error
	VisitMapStart(tag, length int) error
	VisitMapEnd(tag int) error
	VisitStructStart(tag int) error
	VisitStructEnd(tag int) error
}

// ErrSkipVisit is returned by a visitor's start callback to indicate that
// the walker should skip the container's contents.
var ErrSkipVisit = errors.New("skip visit")

// Walk traverses payload, calling the visitor for each headed value.
func Walk(payload []byte, visitor Visitor, opts ...Option) error {
	opt := combine(opts)
	w := walker{
		gd:      genericDecoder{r: NewReader(payload, opt), opt: opt, limits: DefaultLimits},
		visitor: visitor,
	}
	return w.walkBody(-1)
}

// walker drives a Visitor over the head grammar, reusing the generic
// decoder's cursor and skip routines.
type walker struct {
	gd      genericDecoder
	visitor Visitor
}

// walkBody visits headed values until StructEnd or end of input. structTag
// is the enclosing struct's tag, or -1 at top level.
func (w *walker) walkBody(structTag int) error {
	for !w.gd.r.EOF() {
		tag, typeID, err := w.gd.readHead()
		if err != nil {
			return err
		}
		if typeID == TypeStructEnd {
			return nil
		}
		if err := w.walkValue(tag, typeID); err != nil {
			return err
		}
	}
	if structTag >= 0 {
		return partialErrorf("struct under tag %d not terminated", structTag)
	}
	return nil
}

func (w *walker) walkValue(tag int, typeID TypeID) error {
	switch typeID {
	case TypeZeroTag, TypeInt1, TypeInt2, TypeInt4, TypeInt8,
		TypeFloat, TypeDouble, TypeString1, TypeString4:
		v, err := w.gd.readValue(typeID)
		if err != nil {
			return err
		}
		return w.visitor.VisitValue(tag, typeID, v)

	case TypeSimpleList:
		b, err := w.gd.readSimpleList()
		if err != nil {
			return err
		}
		return w.visitor.VisitValue(tag, typeID, b)

	case TypeList:
		n, err := w.gd.readLength()
		if err != nil {
			return err
		}
		if err := w.visitor.VisitListStart(tag, n); err != nil {
			if errors.Is(err, ErrSkipVisit) {
				for i := 0; i < n; i++ {
					_, t, err := w.gd.readHead()
					if err != nil {
						return err
					}
					if err := w.gd.skipValue(t); err != nil {
						return err
					}
				}
				return w.visitor.VisitListEnd(tag)
			}
			return err
		}
		for i := 0; i < n; i++ {
			itemTag, t, err := w.gd.readHead()
			if err != nil {
				return err
			}
			if err := w.walkValue(itemTag, t); err != nil {
				return err
			}
		}
		return w.visitor.VisitListEnd(tag)

	case TypeMap:
		n, err := w.gd.readLength()
		if err != nil {
			return err
		}
		if err := w.visitor.VisitMapStart(tag, n); err != nil {
			if errors.Is(err, ErrSkipVisit) {
				for i := 0; i < 2*n; i++ {
					_, t, err := w.gd.readHead()
					if err != nil {
						return err
					}
					if err := w.gd.skipValue(t); err != nil {
						return err
					}
				}
				return w.visitor.VisitMapEnd(tag)
			}
			return err
		}
		for i := 0; i < n; i++ {
			for j := 0; j < 2; j++ {
				pairTag, t, err := w.gd.readHead()
				if err != nil {
					return err
				}
				if err := w.walkValue(pairTag, t); err != nil {
					return err
				}
			}
		}
		return w.visitor.VisitMapEnd(tag)

	case TypeStructBegin:
		if err := w.visitor.VisitStructStart(tag); err != nil {
			if errors.Is(err, ErrSkipVisit) {
				if err := w.gd.skipStruct(); err != nil {
					return err
				}
				return w.visitor.VisitStructEnd(tag)
			}
			return err
		}
		if err := w.walkBody(tag); err != nil {
			return err
		}
		return w.visitor.VisitStructEnd(tag)
	}

	return decodeErrorf("unknown type ID: %d", typeID)
}
