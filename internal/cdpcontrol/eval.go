package cdpcontrol

import "github.com/dgnsrekt/booktabs/internal/apperr"

func wrapJSEval(body string) string {
	return `(function(){
try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + apperr.CodeCDPFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

// jsFocusProbe reports whether the page is the visible tab of its window
// and whether that window has focus.
func jsFocusProbe() string {
	return wrapJSEval(`return JSON.stringify({ok:true,data:{
visible: document.visibilityState === "visible",
focused: document.hasFocus()
}});`)
}
