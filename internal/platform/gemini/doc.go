// Package gemini provides implementations of the detection interfaces that
// use Google's Gemini API for locating, classifying and auditing
// traffic-scene objects.
//
// This package is an infrastructure adapter in the hexagonal architecture,
// connecting the labeling pipeline to Google's external Gemini AI service.
// It translates between the pipeline's domain models and the Gemini API
// without exposing the details of the external service to the core
// application.
//
// Key components:
//
// 1. Client:
//   - Implements the detection.Detector, detection.SignClassifier and
//     detection.Auditor interfaces
//   - Handles communication with the Gemini API
//   - Processes model responses into domain detections
//
// 2. Prompt Management:
//   - Builds the detection prompt around the label taxonomy
//   - Builds the two-stage sign classification prompts from the reference
//     sign catalog
//   - Builds the frame audit prompt from the current detections
//
// 3. Response Processing:
//   - Extracts the JSON detection array from fenced or chatty responses
//   - Scales coordinates from the model's grid to pixel space
//   - Canonicalizes labels through the labels package
//
// 4. Error Handling:
//   - Translates API throttling into detection.RateLimitError carrying the
//     server's suggested wait
//   - Categorizes empty and malformed responses so the retry executor can
//     decide what is worth another attempt
//
// The package depends on Google's google.golang.org/genai client library
// for communicating with the Gemini API, and handles authentication,
// request formatting, and response processing according to Google's
// API specifications.
package gemini
