package workflow

import "github.com/tidwall/jsonc"

func jsoncToJSON(s string) []byte { return jsonc.ToJSON([]byte(s)) }
