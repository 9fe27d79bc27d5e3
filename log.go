package jce

import "github.com/op/go-logging"

var log = logging.MustGetLogger("jce")
