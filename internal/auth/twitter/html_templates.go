package twitter

// authSuccessHTML is rendered in the operator's browser after a successful
// authorization redirect.
const authSuccessHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Authorization complete</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
  <h1>Authorization complete</h1>
  <p>The authorization code was received and is being exchanged for tokens.</p>
  <p>Return to the terminal to see the result. You can close this window.</p>
</body>
</html>
`

// authFailureHTML is rendered when the provider redirects back with an
// error. The two placeholders are the error code and its description.
const authFailureHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Authorization failed</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
  <h1>Authorization failed</h1>
  <p>Error: %s</p>
  <p>%s</p>
  <p>Close this window and try again.</p>
</body>
</html>
`
