package protocol

import jsoniter "github.com/json-iterator/go"

// json is the codec for every request body crossing the socket.
var json = jsoniter.ConfigCompatibleWithStandardLibrary
