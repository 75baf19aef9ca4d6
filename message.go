package main

const (
	MsgNoImage      = "No image data provided"
	MsgDecodeFailed = "Failed to decode image"
)
