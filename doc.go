// Package cdpcore is the protocol-facing core of a remote browser-automation
// client. It drives a Chromium-family browser over the Chrome DevTools wire
// protocol and maintains an event-driven mirror of the browser's target
// tree, frame tree, network activity, and navigation lifecycle.
//
// cdpcore is a consumer of the protocol, not a source of truth for it: all
// wire types come from github.com/chromedp/cdproto. Process launching,
// input synthesis, DOM selector engines, screenshotting, and the CLI
// surface live outside this package.
package cdpcore
